package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aipp-workbench/engine/internal/branch"
	"github.com/aipp-workbench/engine/internal/events"
	"github.com/aipp-workbench/engine/internal/orchestrator"
	"github.com/aipp-workbench/engine/internal/store"
)

func buildConversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversation",
		Short: "Create conversations and drive turns through the engine",
	}
	cmd.AddCommand(
		buildConversationNewCmd(),
		buildConversationSendCmd(),
		buildConversationShowCmd(),
	)
	return cmd
}

func buildConversationNewCmd() *cobra.Command {
	var name, assistantID string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a new, empty conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			conv := &store.Conversation{
				ID:          uuid.NewString(),
				Name:        name,
				AssistantID: assistantID,
				CreatedTime: time.Now(),
			}
			if err := eng.store.Conversations().Create(cmd.Context(), conv); err != nil {
				return err
			}
			eng.bus.Publish(conv.ID, events.Event{Kind: events.KindConversationCreated, Data: conv.ID})
			fmt.Println(conv.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name for the conversation")
	cmd.Flags().StringVar(&assistantID, "assistant", "default", "assistant id whose enabled MCP tools this conversation uses")
	return cmd
}

func buildConversationSendCmd() *cobra.Command {
	var conversationID, modelID, truncateAt string
	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Persist a user turn and drive the orchestrator loop to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(conversationID) == "" {
				return fmt.Errorf("--id is required")
			}
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := cmd.Context()
			unsub := eng.bus.Subscribe(conversationID)
			defer eng.bus.Unsubscribe(conversationID, unsub)
			go printStreamedEvents(unsub)

			if _, err := eng.orch.PersistUserTurn(ctx, conversationID, args[0]); err != nil {
				return err
			}
			return eng.orch.RunTurn(ctx, conversationID, orchestrator.TurnOptions{
				ModelID:    modelID,
				TruncateAt: truncateAt,
			})
		},
	}
	cmd.Flags().StringVar(&conversationID, "id", "", "conversation id (required)")
	cmd.Flags().StringVar(&modelID, "model", "", "model id; resolved through the configured provider")
	cmd.Flags().StringVar(&truncateAt, "regenerate", "", "parent_group_id to truncate and regenerate from")
	return cmd
}

func buildConversationShowCmd() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the latest-branch messages of a conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(conversationID) == "" {
				return fmt.Errorf("--id is required")
			}
			eng, err := buildEngine(configPathFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer eng.Close()

			rows, err := eng.store.Messages().ListByConversation(cmd.Context(), conversationID)
			if err != nil {
				return err
			}
			msgs := make([]store.Message, len(rows))
			for i, m := range rows {
				msgs[i] = *m
			}
			for _, m := range branch.SelectBranch(msgs) {
				fmt.Printf("[%s] %s: %s\n", m.CreatedTime.Format(time.RFC3339), m.MessageType, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "id", "", "conversation id (required)")
	return cmd
}

func printStreamedEvents(ch <-chan events.Event) {
	for evt := range ch {
		switch evt.Kind {
		case events.KindMessageUpdate:
			u := evt.Data.(events.MessageUpdate)
			if u.IsDone {
				fmt.Println()
			}
		case events.KindToolPermissionReq:
			req := evt.Data.(events.ToolPermissionRequest)
			fmt.Printf("\n[permission requested] %s %s (request %s)\n", req.Kind, req.Target, req.RequestID)
		}
	}
}
