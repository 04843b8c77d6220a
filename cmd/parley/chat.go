package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/inference/gemini"
	"github.com/go-go-golems/parley/pkg/persistence"
	"github.com/go-go-golems/parley/pkg/profiles"
)

const chatTopic = "chat"

func newChatCommand() *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)
			if model != "" {
				cfg.DefaultModel = model
			}

			apiKey := cfg.APIKey()
			if apiKey == "" {
				return errors.Errorf("no API key found, set %s", cfg.APIKeyEnv)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			client, err := gemini.NewClient(ctx, apiKey, gemini.WithOneShotModel(cfg.OneShotModel))
			if err != nil {
				return err
			}
			defer func() {
				if err := client.Close(); err != nil {
					log.Warn().Err(err).Msg("failed to close gemini client")
				}
			}()

			snap := persistence.NewSnapshotter(persistence.NewFileStore(cfg.StorageDir))

			var profileStore *profiles.ProfileStore
			profileStore = profiles.NewProfileStore(
				profiles.WithProfile(snap.LoadProfile()),
				profiles.WithProfileOnChange(func() {
					snap.SaveProfile(profileStore.Get())
				}),
			)

			var threadStore *conversation.ThreadStore
			threadStore = conversation.NewThreadStore(
				conversation.WithThreads(snap.LoadThreads()),
				conversation.WithOnChange(func() {
					snap.SaveThreads(threadStore.Threads())
				}),
			)

			router, err := events.NewEventRouter(
				events.WithRouterLogger(events.NewWatermillLogger(log.Logger)),
			)
			if err != nil {
				return err
			}
			defer func() {
				if err := router.Close(); err != nil {
					log.Warn().Err(err).Msg("failed to close event router")
				}
			}()

			router.AddHandler("print-stream", chatTopic, printStreamHandler)
			go func() {
				if err := router.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("event router stopped")
				}
			}()
			<-router.Running()

			orch := chat.NewOrchestrator(threadStore, profileStore, client,
				chat.WithDefaultModel(cfg.DefaultModel),
				chat.WithSinks(events.NewWatermillSink(router.Publisher, chatTopic)),
			)

			repl(ctx, orch, threadStore, profileStore, cfg.DefaultModel)
			orch.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Model for new threads (overrides config)")

	return cmd
}

// printStreamHandler renders streaming events as they come off the bus.
func printStreamHandler(msg *message.Message) error {
	defer msg.Ack()

	event, err := events.NewEventFromJson(msg.Payload)
	if err != nil {
		return err
	}

	switch e := event.(type) {
	case *events.EventPartialCompletion:
		fmt.Print(e.Delta)
	case *events.EventFinal:
		fmt.Println()
	case *events.EventError:
		fmt.Printf("\n%s\n", chat.StreamFailureNotice)
	}
	return nil
}

func repl(
	ctx context.Context,
	orch *chat.Orchestrator,
	threadStore *conversation.ThreadStore,
	profileStore *profiles.ProfileStore,
	defaultModel string,
) {
	fmt.Println("parley - /new /list /switch <n> /delete <n> /profile /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if thread, ok := threadStore.ActiveThread(); ok {
			fmt.Printf("[%s] > ", thread.Title)
		} else {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(line, threadStore, profileStore, defaultModel); quit {
				return
			}
			continue
		}

		if _, err := orch.SendMessage(ctx, line); err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		// one exchange at a time in the terminal: wait for the stream and
		// its background tasks before prompting again
		orch.Wait()
	}
}

func runCommand(line string, threadStore *conversation.ThreadStore, profileStore *profiles.ProfileStore, defaultModel string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/new":
		threadStore.CreateThread(defaultModel, chat.DefaultThreadTitle)
		fmt.Println("started a new conversation")

	case "/list":
		for i, t := range threadStore.Threads() {
			marker := " "
			if active, ok := threadStore.ActiveThreadID(); ok && active == t.ID {
				marker = "*"
			}
			fmt.Printf("%s %2d. %s (%d messages)\n", marker, i+1, t.Title, len(t.Messages))
		}

	case "/switch":
		if thread, ok := threadAt(threadStore, fields); ok {
			if err := threadStore.SelectThread(thread.ID); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		}

	case "/delete":
		if thread, ok := threadAt(threadStore, fields); ok {
			threadStore.DeleteThread(thread.ID)
			fmt.Printf("deleted %q\n", thread.Title)
		}

	case "/profile":
		profile := profileStore.Get()
		if profile.IsZero() {
			fmt.Println("nothing learned yet")
		} else {
			fmt.Printf("name: %s\npreferences: %s\n", profile.Name, profile.Preferences)
		}

	default:
		fmt.Printf("unknown command %s\n", fields[0])
	}
	return false
}

func threadAt(threadStore *conversation.ThreadStore, fields []string) (*conversation.ChatThread, bool) {
	if len(fields) < 2 {
		fmt.Println("usage: " + fields[0] + " <n>")
		return nil, false
	}
	n, err := strconv.Atoi(fields[1])
	threads := threadStore.Threads()
	if err != nil || n < 1 || n > len(threads) {
		fmt.Printf("no thread %s\n", fields[1])
		return nil, false
	}
	return threads[n-1], true
}
