package model

import (
	"context"
	"fmt"

	"github.com/agents4j/agents4j-go/graph"
)

// Context keys the agent node records after each model call. Token counts
// accumulate across the agent nodes of one execution.
var (
	// InputTokensKey holds the cumulative input token count.
	InputTokensKey = graph.NewKey[int64]("llm_input_tokens")

	// OutputTokensKey holds the cumulative output token count.
	OutputTokensKey = graph.NewKey[int64]("llm_output_tokens")
)

// PromptFunc builds the conversation an agent node sends to its model.
type PromptFunc[S any] func(state graph.State[S]) []Message

// InterpretFunc folds the model's reply into the workflow data.
type InterpretFunc[S any] func(data S, out ChatOut) (S, error)

// AgentNode implements the workflow node contract by wrapping a ChatModel:
// build a prompt from the state, call the model, fold the reply into the
// data, then either traverse to the configured next node or complete.
//
// The engine never sees the provider; everything crosses the node contract.
//
// Example:
//
//	summarize := model.NewAgentNode[string]("summarize", "Summarizer", chatModel,
//	    func(s graph.State[string]) []model.Message {
//	        return []model.Message{{Role: model.RoleUser, Content: "Summarize: " + s.Data}}
//	    },
//	    func(data string, out model.ChatOut) (string, error) { return out.Text, nil },
//	)
//	summarize.Next = "review"
type AgentNode[S any] struct {
	graph.BaseNode

	// Model is the LLM backing this node.
	Model ChatModel

	// Prompt builds the conversation from the current state.
	Prompt PromptFunc[S]

	// Interpret folds the reply into the data. Nil keeps the data as-is.
	Interpret InterpretFunc[S]

	// Tools are offered to the model on every call. May be nil.
	Tools []ToolSpec

	// Next is the node to traverse to after a successful call. Empty
	// completes the workflow with the interpreted data.
	Next graph.NodeID
}

// NewAgentNode creates an agent node typed AGENT.
func NewAgentNode[S any](id graph.NodeID, name string, m ChatModel, prompt PromptFunc[S], interpret InterpretFunc[S]) *AgentNode[S] {
	return &AgentNode[S]{
		BaseNode:  graph.NewBaseNode(id, name, graph.NodeTypeAgent),
		Model:     m,
		Prompt:    prompt,
		Interpret: interpret,
	}
}

// Process implements the node contract.
func (n *AgentNode[S]) Process(ctx context.Context, state graph.State[S]) (graph.Command[S], error) {
	out, err := n.Model.Chat(ctx, n.Prompt(state), n.Tools)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	data := state.Data
	if n.Interpret != nil {
		data, err = n.Interpret(state.Data, out)
		if err != nil {
			return nil, fmt.Errorf("cannot interpret model reply: %w", err)
		}
	}

	updates := graph.NewContext()
	if out.Usage.InputTokens > 0 || out.Usage.OutputTokens > 0 {
		in := graph.GetOr(state.Context, InputTokensKey, 0) + out.Usage.InputTokens
		outTok := graph.GetOr(state.Context, OutputTokensKey, 0) + out.Usage.OutputTokens
		updates = graph.With(updates, InputTokensKey, in)
		updates = graph.With(updates, OutputTokensKey, outTok)
	}

	if n.Next == "" {
		return graph.Complete[S]{Result: data, Updates: updates}, nil
	}
	return graph.Traverse[S]{Target: n.Next, Updates: updates, NewData: &data}, nil
}

// Validate checks the node has a model and a prompt builder.
func (n *AgentNode[S]) Validate() error {
	if n.Model == nil {
		return fmt.Errorf("agent node %s has no model", n.ID())
	}
	if n.Prompt == nil {
		return fmt.Errorf("agent node %s has no prompt builder", n.ID())
	}
	return nil
}
