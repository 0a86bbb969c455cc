// Command chat is a minimal streaming console for trying the runtime
// against a live provider. It wires a couple of demo tools, optionally an
// MCP server, and prints tokens as they stream.
//
// Usage:
//
//	chat -provider openai -model gpt-4o
//	chat -provider anthropic -model claude-sonnet-4-0 -mcp "stdio://./server"
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	agents "github.com/kestrelab/agentloop/pkg"
	"github.com/kestrelab/agentloop/tools"
)

var (
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	agentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	toolStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type chatContext struct {
	Workdir string
}

func main() {
	providerName := flag.String("provider", "openai", "model provider: openai or anthropic")
	modelName := flag.String("model", "gpt-4o", "model identifier")
	mcpServer := flag.String("mcp", "", "optional MCP server transport spec")
	maxTurns := flag.Int("max-turns", 10, "maximum model calls per run")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var llm agents.LanguageModel
	switch *providerName {
	case "openai":
		llm = agents.NewOpenAIModel(*modelName)
	case "anthropic":
		llm = agents.NewAnthropicModel(*modelName)
	default:
		fmt.Fprintf(os.Stderr, "unknown provider %q\n", *providerName)
		os.Exit(1)
	}

	agent := &agents.Agent[chatContext]{
		Name:         "chat",
		Model:        llm,
		Instructions: agents.StringInstructions[chatContext]("You are a concise, helpful assistant."),
		Tools: []agents.Tool[chatContext]{
			tools.New("get_time", "Returns the current time.", getTime),
		},
		MaxTurns: *maxTurns,
		Logger:   logger,
	}
	if *mcpServer != "" {
		agent.Toolkits = append(agent.Toolkits, &agents.MCPToolkit[chatContext]{Transport: *mcpServer})
	}

	ctx := context.Background()
	session, err := agents.NewSession(ctx, agent, chatContext{Workdir: mustGetwd()})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer session.Close(ctx)

	renderer, _ := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))

	var items []agents.Message
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(userStyle.Render("you") + " > ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return
		}

		items = append(items, agents.UserMessage(line))
		sr := session.RunStream(ctx, agents.Input{OfItems: items})
		fmt.Print(agentStyle.Render(agent.Name) + " > ")
		var raw strings.Builder
		for ev := range sr.Events() {
			if partial, ok := ev.Partial(); ok && partial.Delta != nil {
				if d := partial.Delta.OfText; d != nil {
					raw.WriteString(d.Text)
					fmt.Print(d.Text)
				}
			}
			if item, ok := ev.Item(); ok && item.Role == "tool" {
				for _, part := range item.Parts {
					if r := part.OfToolResult; r != nil {
						fmt.Println(toolStyle.Render(fmt.Sprintf("\n[tool %s done]", r.ToolName)))
					}
				}
			}
		}
		resp, err := sr.Wait()
		if err != nil {
			fmt.Fprintln(os.Stderr, "\nerror:", err)
			items = append(items, sr.Items()...)
			continue
		}
		fmt.Println()
		if rendered, rerr := renderer.Render(raw.String()); rerr == nil {
			fmt.Print(rendered)
		}
		items = append(items, resp.NewItems...)
	}
}

type timeArgs struct{}

func getTime(ctx context.Context, _ timeArgs, _ chatContext) (tools.Result, error) {
	return tools.TextResult(time.Now().Format(time.RFC1123)), nil
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
