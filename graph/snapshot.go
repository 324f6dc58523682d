package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SchemaVersion is the version of the persisted snapshot layout. Bumped
// only when the JSON shape changes incompatibly.
const SchemaVersion = 1

// Snapshot is a serializable capture of workflow state at a suspension
// point. It carries everything needed to resume in another process:
// the state itself, the suspension reason, and version markers checked
// on resume.
//
// Type parameter S is the workflow's user data type.
type Snapshot[S any] struct {
	// State is the suspended state. Current may be empty when the
	// workflow suspended at a fork join point.
	State State[S]

	// Reason describes why the workflow suspended.
	Reason string

	// Timeout optionally bounds how long the snapshot remains resumable.
	// Informational; enforcement belongs to the suspension store.
	Timeout time.Duration

	// WorkflowVersion is the version of the workflow definition that
	// produced this snapshot. Filled by the serializer.
	WorkflowVersion string

	// SerializedAt records when the snapshot was serialized. Zero until
	// the serializer runs.
	SerializedAt time.Time
}

func newSnapshot[S any](state State[S], reason string, timeout time.Duration) *Snapshot[S] {
	return &Snapshot[S]{State: state, Reason: reason, Timeout: timeout}
}

// KeyRegistry maps context type descriptors to decoders, replacing
// reflective type discovery: only explicitly registered types are restored
// from a snapshot; unknown types are dropped with a warning.
//
// Register every key type the workflow stores in context:
//
//	registry := graph.NewKeyRegistry()
//	graph.RegisterKeyType[string](registry)
//	graph.RegisterKeyType[float64](registry)
type KeyRegistry struct {
	decoders map[string]func(json.RawMessage) (any, error)
}

// NewKeyRegistry creates a registry pre-loaded with the primitive types
// the engine itself stores (string entries such as the last edge id).
func NewKeyRegistry() *KeyRegistry {
	r := &KeyRegistry{decoders: map[string]func(json.RawMessage) (any, error){}}
	RegisterKeyType[string](r)
	RegisterKeyType[bool](r)
	RegisterKeyType[int](r)
	RegisterKeyType[int64](r)
	RegisterKeyType[float64](r)
	RegisterKeyType[[]string](r)
	return r
}

// RegisterKeyType registers the decoder for context values of type T.
// Registration is idempotent; the last registration wins.
func RegisterKeyType[T any](r *KeyRegistry) {
	var zero T
	typeName := fmt.Sprintf("%T", zero)
	r.decoders[typeName] = func(raw json.RawMessage) (any, error) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// decode restores one context value. The second return is false when the
// type is not registered.
func (r *KeyRegistry) decode(typeName string, raw json.RawMessage) (any, bool, error) {
	dec, ok := r.decoders[typeName]
	if !ok {
		return nil, false, nil
	}
	v, err := dec(raw)
	if err != nil {
		return nil, true, err
	}
	return v, true, nil
}

// Migration transforms a serialized snapshot payload between two minor
// workflow versions. Apply receives and returns the raw JSON document.
type Migration struct {
	// From and To are "major.minor" version strings.
	From string
	To   string

	// Apply rewrites the serialized payload.
	Apply func(payload []byte) ([]byte, error)
}

// Serializer converts snapshots to and from the persisted JSON layout.
//
// The serializer owns version compatibility: on resume the major workflow
// version must match; minor mismatches are accepted, running any matching
// migrations first. Context values round-trip through the KeyRegistry;
// values whose type is unregistered are dropped with a warning rather than
// failing the whole restore.
type Serializer[S any] struct {
	registry   *KeyRegistry
	version    string
	migrations []Migration
}

// NewSerializer creates a serializer for workflow definitions at the given
// version ("major.minor" or "major.minor.patch").
func NewSerializer[S any](registry *KeyRegistry, version string, migrations ...Migration) *Serializer[S] {
	if registry == nil {
		registry = NewKeyRegistry()
	}
	return &Serializer[S]{registry: registry, version: version, migrations: migrations}
}

// persistedContextValue is one context entry on disk: the JSON value plus
// the type descriptor used to restore it.
type persistedContextValue struct {
	Value json.RawMessage `json:"value"`
	Type  string          `json:"type"`
}

// persistedPosition mirrors Position in the snapshot layout.
type persistedPosition struct {
	Depth        int      `json:"depth"`
	Path         []string `json:"path"`
	PreviousNode string   `json:"previousNode,omitempty"`
}

// persistedMetadata mirrors Metadata in the snapshot layout.
type persistedMetadata struct {
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
}

// persistedSnapshot is the on-disk JSON layout.
type persistedSnapshot struct {
	WorkflowVersion string                           `json:"workflowVersion"`
	SchemaVersion   int                              `json:"schemaVersion"`
	WorkflowID      string                           `json:"workflowId"`
	StateData       json.RawMessage                  `json:"stateData"`
	CurrentNode     string                           `json:"currentNode,omitempty"`
	ContextData     map[string]persistedContextValue `json:"contextData"`
	PositionData    persistedPosition                `json:"positionData"`
	MetadataData    persistedMetadata                `json:"metadataData"`
	SerializedAt    time.Time                        `json:"serializedAt"`
	StateDataType   string                           `json:"stateDataType"`
	Reason          string                           `json:"reason,omitempty"`
}

// Marshal serializes a snapshot into the persisted JSON layout.
// Serialization is total on any reachable state whose data and context
// values are JSON-serializable.
func (sz *Serializer[S]) Marshal(snap *Snapshot[S]) ([]byte, error) {
	state := snap.State

	stateData, err := json.Marshal(state.Data)
	if err != nil {
		return nil, NewSystemError(CodeSerializationError, SeverityError,
			fmt.Sprintf("cannot serialize state data: %v", err), err)
	}

	contextData := make(map[string]persistedContextValue, state.Context.Len())
	for name, entry := range state.Context.rawEntries() {
		raw, err := json.Marshal(entry.value)
		if err != nil {
			return nil, NewSystemError(CodeSerializationError, SeverityError,
				fmt.Sprintf("cannot serialize context entry %q: %v", name, err), err)
		}
		contextData[name] = persistedContextValue{Value: raw, Type: entry.typeName}
	}

	path := make([]string, len(state.Position.Path))
	for i, id := range state.Position.Path {
		path[i] = string(id)
	}

	var zero S
	doc := persistedSnapshot{
		WorkflowVersion: sz.version,
		SchemaVersion:   SchemaVersion,
		WorkflowID:      string(state.WorkflowID),
		StateData:       stateData,
		CurrentNode:     string(state.Current),
		ContextData:     contextData,
		PositionData: persistedPosition{
			Depth:        state.Position.Depth,
			Path:         path,
			PreviousNode: string(state.Position.Previous),
		},
		MetadataData: persistedMetadata{
			Version:      state.Metadata.Version,
			CreatedAt:    state.Metadata.CreatedAt,
			LastModified: state.Metadata.LastModified,
		},
		SerializedAt:  time.Now().UTC(),
		StateDataType: fmt.Sprintf("%T", zero),
		Reason:        snap.Reason,
	}

	return json.Marshal(doc)
}

// Unmarshal restores a snapshot from its persisted form.
//
// Returns the snapshot, any warnings (dropped context entries), and an
// error for schema mismatches, major version mismatches, or corrupt data.
func (sz *Serializer[S]) Unmarshal(data []byte) (*Snapshot[S], []string, error) {
	var probe struct {
		SchemaVersion   int    `json:"schemaVersion"`
		WorkflowVersion string `json:"workflowVersion"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, nil, NewSystemError(CodeSerializationError, SeverityError,
			fmt.Sprintf("corrupt snapshot: %v", err), err)
	}
	if probe.SchemaVersion != SchemaVersion {
		return nil, nil, NewSystemError(CodeVersionMismatch, SeverityError,
			fmt.Sprintf("snapshot schema version %d, expected %d", probe.SchemaVersion, SchemaVersion), nil)
	}

	if err := sz.checkVersion(probe.WorkflowVersion); err != nil {
		return nil, nil, err
	}

	migrated, err := sz.migrate(data, probe.WorkflowVersion)
	if err != nil {
		return nil, nil, err
	}

	var doc persistedSnapshot
	if err := json.Unmarshal(migrated, &doc); err != nil {
		return nil, nil, NewSystemError(CodeSerializationError, SeverityError,
			fmt.Sprintf("corrupt snapshot: %v", err), err)
	}

	var stateData S
	if len(doc.StateData) > 0 {
		if err := json.Unmarshal(doc.StateData, &stateData); err != nil {
			return nil, nil, NewSystemError(CodeSerializationError, SeverityError,
				fmt.Sprintf("cannot restore state data: %v", err), err)
		}
	}

	var warnings []string
	ctx := NewContext()
	for _, name := range sortedNames(doc.ContextData) {
		pv := doc.ContextData[name]
		value, known, err := sz.registry.decode(pv.Type, pv.Value)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("context entry %q (%s) failed to decode: %v", name, pv.Type, err))
			continue
		}
		if !known {
			warnings = append(warnings, fmt.Sprintf("context entry %q has unregistered type %s; dropped", name, pv.Type))
			continue
		}
		ctx = ctx.withRaw(name, pv.Type, value)
	}

	path := make([]NodeID, len(doc.PositionData.Path))
	for i, id := range doc.PositionData.Path {
		path[i] = NodeID(id)
	}

	snap := &Snapshot[S]{
		State: State[S]{
			WorkflowID: WorkflowID(doc.WorkflowID),
			Data:       stateData,
			Context:    ctx,
			Current:    NodeID(doc.CurrentNode),
			Position: Position{
				Depth:    doc.PositionData.Depth,
				Path:     path,
				Previous: NodeID(doc.PositionData.PreviousNode),
			},
			Metadata: Metadata{
				Version:      doc.MetadataData.Version,
				CreatedAt:    doc.MetadataData.CreatedAt,
				LastModified: doc.MetadataData.LastModified,
			},
		},
		Reason:          doc.Reason,
		WorkflowVersion: doc.WorkflowVersion,
		SerializedAt:    doc.SerializedAt,
	}
	return snap, warnings, nil
}

// checkVersion enforces major-version equality between the snapshot and
// this serializer's workflow definition.
func (sz *Serializer[S]) checkVersion(snapshotVersion string) error {
	snapMajor, _, err := parseVersion(snapshotVersion)
	if err != nil {
		return NewSystemError(CodeVersionMismatch, SeverityError,
			fmt.Sprintf("snapshot carries invalid workflow version %q", snapshotVersion), err)
	}
	curMajor, _, err := parseVersion(sz.version)
	if err != nil {
		return NewSystemError(CodeVersionMismatch, SeverityError,
			fmt.Sprintf("serializer has invalid workflow version %q", sz.version), err)
	}
	if snapMajor != curMajor {
		return NewSystemError(CodeVersionMismatch, SeverityError,
			fmt.Sprintf("snapshot workflow version %s incompatible with %s", snapshotVersion, sz.version), nil)
	}
	return nil
}

// migrate chains registered migrations from the snapshot's version toward
// the serializer's version. Each migration fires at most once, in
// registration order.
func (sz *Serializer[S]) migrate(data []byte, from string) ([]byte, error) {
	cur := majorMinor(from)
	target := majorMinor(sz.version)
	if cur == target {
		return data, nil
	}
	for _, m := range sz.migrations {
		if majorMinor(m.From) != cur {
			continue
		}
		out, err := m.Apply(data)
		if err != nil {
			return nil, NewSystemError(CodeSerializationError, SeverityError,
				fmt.Sprintf("migration %s -> %s failed: %v", m.From, m.To, err), err)
		}
		data = out
		cur = majorMinor(m.To)
		if cur == target {
			break
		}
	}
	return data, nil
}

func parseVersion(v string) (major, minor int, err error) {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("version %q is not major.minor", v)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return major, minor, nil
}

func majorMinor(v string) string {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return v
	}
	return parts[0] + "." + parts[1]
}

func sortedNames(m map[string]persistedContextValue) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
