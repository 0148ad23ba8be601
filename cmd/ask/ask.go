package ask

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tmc/langchaingo/tools"

	"pcbuild-agent/internal/llm"
	"pcbuild-agent/pkg/agent"
	"pcbuild-agent/pkg/events"
	"pcbuild-agent/pkg/logger"
	"pcbuild-agent/pkg/relay"
	"pcbuild-agent/pkg/search"
)

// AskCmd runs a single reasoning session without the HTTP server.
var AskCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Run one PC-build session from the command line",
	Long: `Run a single reasoning session for the given prompt, logging the agent's
intermediate steps and printing the final recommendation to stdout.

Example:
  pcbuild-agent ask "Build a gaming PC, my budget is 50000 INR."`,
	Args: cobra.ExactArgs(1),
	Run:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) {
	askLogger, err := logger.CreateLogger(
		viper.GetString("log-file"),
		viper.GetString("log-level"),
		viper.GetString("log-format"),
		false,
	)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer askLogger.Close()

	searchTool := search.NewTool(search.NewDuckDuckGo(), search.WithLogger(askLogger))

	ctx := context.Background()
	pcAgent, err := agent.New(ctx, agent.Config{
		Provider:      llm.Provider(viper.GetString("provider")),
		ModelID:       viper.GetString("model"),
		Temperature:   viper.GetFloat64("temperature"),
		MaxIterations: viper.GetInt("max-iterations"),
		Logger:        askLogger,
	}, []tools.Tool{searchTool})
	if err != nil {
		askLogger.Fatalf("Failed to create agent: %v", err)
	}

	r := relay.New(pcAgent, relay.Options{
		PingInterval: 60 * time.Second,
		MaxWorkers:   1,
		Logger:       askLogger,
	})

	session, err := r.Open(ctx, args[0])
	if err != nil {
		askLogger.Fatalf("Failed to start session: %v", err)
	}

	for {
		ev, ok := session.Next()
		if !ok {
			break
		}
		switch ev.Type {
		case events.FinalAnswer:
			fmt.Println(ev.Content)
		case events.Error:
			askLogger.Errorf("session failed: %s", ev.Content)
		case events.Ping, events.StreamEnd:
			// framing only
		default:
			askLogger.Infof("[%s] %s", ev.Type, ev.Content)
		}
	}
}
