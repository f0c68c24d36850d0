package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/matchdesk/toc/pkg/api"
	"github.com/matchdesk/toc/pkg/bus"
	"github.com/matchdesk/toc/pkg/channels"
	"github.com/matchdesk/toc/pkg/config"
	"github.com/matchdesk/toc/pkg/live"
	"github.com/matchdesk/toc/pkg/logger"
	"github.com/matchdesk/toc/pkg/relay"
	"github.com/matchdesk/toc/pkg/toc"
)

type console struct {
	cfg      *config.Config
	roster   *toc.RosterService
	payments *toc.PaymentsService
	schedule *toc.ScheduleService
	settings *toc.SettingsService
	chat     *toc.ChatService
	channel  *live.Channel
	bridges  []channels.Channel
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "toc: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := api.NewClient(api.Config{
		BaseURL:      cfg.BaseURL,
		CSRFToken:    cfg.CSRFToken,
		Timeout:      cfg.Timeout,
		ReadRetries:  cfg.ReadRetries,
		RetryBackoff: cfg.RetryBackoff,
	})

	c := &console{
		cfg:      cfg,
		roster:   toc.NewRosterService(client, cfg.TeamID),
		payments: toc.NewPaymentsService(client, cfg.TeamID),
		schedule: toc.NewScheduleService(client, cfg.TeamID),
		settings: toc.NewSettingsService(client, cfg.TeamID),
		chat:     toc.NewChatService(client, cfg.TeamID),
	}

	messageBus := bus.NewMessageBus()
	c.bridges = startBridges(ctx, cfg, messageBus)
	rel := relay.New(messageBus, c.chat, c.bridges...)

	c.channel = live.New(live.Config{
		BaseURL:        cfg.BaseURL,
		TeamID:         cfg.TeamID,
		PollInterval:   cfg.PollInterval,
		HealthInterval: cfg.HealthInterval,
		ReconnectMin:   cfg.ReconnectMin,
		ReconnectMax:   cfg.ReconnectMax,
	}, client, func(msg live.Message) {
		fmt.Printf("\r[%s] %s (%s): %s\n", msg.Timestamp.Local().Format("15:04"), msg.Author, msg.Source, msg.Body)
		rel.HandleLive(msg)
	})
	if err := c.channel.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "toc: live channel: %v\n", err)
		os.Exit(1)
	}
	go rel.Run(ctx)

	c.repl(ctx)

	cancel()
	c.channel.Close()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	for _, b := range c.bridges {
		if err := b.Stop(stopCtx); err != nil {
			logger.WarnCF("main", "Bridge stop failed", map[string]any{
				"bridge": b.Name(),
				"error":  err.Error(),
			})
		}
	}
}

func startBridges(ctx context.Context, cfg *config.Config, messageBus *bus.MessageBus) []channels.Channel {
	var bridges []channels.Channel

	if cfg.Discord.Enabled() {
		if ch, err := channels.NewDiscordChannel(cfg.Discord, messageBus); err != nil {
			logger.ErrorCF("main", "Discord bridge init failed", map[string]any{"error": err.Error()})
		} else if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("main", "Discord bridge start failed", map[string]any{"error": err.Error()})
		} else {
			bridges = append(bridges, ch)
		}
	}
	if cfg.Slack.Enabled() {
		if ch, err := channels.NewSlackChannel(cfg.Slack, messageBus); err != nil {
			logger.ErrorCF("main", "Slack bridge init failed", map[string]any{"error": err.Error()})
		} else if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("main", "Slack bridge start failed", map[string]any{"error": err.Error()})
		} else {
			bridges = append(bridges, ch)
		}
	}
	if cfg.Telegram.Enabled() {
		if ch, err := channels.NewTelegramChannel(cfg.Telegram, messageBus); err != nil {
			logger.ErrorCF("main", "Telegram bridge init failed", map[string]any{"error": err.Error()})
		} else if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("main", "Telegram bridge start failed", map[string]any{"error": err.Error()})
		} else {
			bridges = append(bridges, ch)
		}
	}
	return bridges
}

func (c *console) repl(ctx context.Context) {
	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "toc> ",
		HistoryFile:     filepath.Join(home, ".toc_history"),
		InterruptPrompt: "^C",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "toc: %v\n", err)
		return
	}
	defer rl.Close()

	fmt.Printf("Tournament operations console, team %s. Type 'help' for commands.\n", c.cfg.TeamID)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		args := strings.Fields(line)
		switch args[0] {
		case "quit", "exit":
			return
		case "help":
			printHelp()
		case "status":
			fmt.Printf("live channel: %s, bridges: %d\n", c.channel.State(), len(c.bridges))
		case "roster":
			c.cmdRoster(ctx, args[1:])
		case "payments":
			c.cmdPayments(ctx, args[1:])
		case "schedule":
			c.cmdSchedule(ctx, args[1:])
		case "settings":
			c.cmdSettings(ctx, args[1:])
		case "chat":
			c.cmdChat(ctx, args[1:])
		default:
			fmt.Printf("unknown command %q; type 'help'\n", args[0])
		}
	}
}

func printHelp() {
	fmt.Print(`commands:
  roster                          list players
  roster add <gamertag> <role>    add a player
  roster remove <player-id>       remove a player
  payments                        show the ledger
  payments record <player-id> <cents> <description...>
  payments receipt <entry-id> <file> [note...]
  schedule                        list matches
  schedule next <match-id> [n]    upcoming occurrences
  settings                        show team settings
  chat <message...>               send a chat message
  status                          connection state
  quit
`)
}

// printErr is the per-command error surface: the resolved message is shown
// directly, with field errors listed beneath it.
func printErr(err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		fmt.Printf("error: %s\n", apiErr.Message)
		for field, msg := range apiErr.FieldErrors {
			fmt.Printf("  %s: %s\n", field, msg)
		}
		return
	}
	fmt.Printf("error: %v\n", err)
}

func (c *console) cmdRoster(ctx context.Context, args []string) {
	switch {
	case len(args) == 0:
		players, err := c.roster.List(ctx)
		if err != nil {
			printErr(err)
			return
		}
		for _, p := range players {
			fmt.Printf("  %-12s %-20s %s\n", p.ID, p.Gamertag, p.Role)
		}
	case args[0] == "add" && len(args) >= 3:
		p, err := c.roster.Add(ctx, toc.Player{Gamertag: args[1], Role: args[2]})
		if err != nil {
			printErr(err)
			return
		}
		fmt.Printf("added %s (%s)\n", p.Gamertag, p.ID)
	case args[0] == "remove" && len(args) == 2:
		if err := c.roster.Remove(ctx, args[1]); err != nil {
			printErr(err)
			return
		}
		fmt.Println("removed")
	default:
		fmt.Println("usage: roster [add <gamertag> <role> | remove <player-id>]")
	}
}

func (c *console) cmdPayments(ctx context.Context, args []string) {
	switch {
	case len(args) == 0:
		entries, err := c.payments.Ledger(ctx)
		if err != nil {
			printErr(err)
			return
		}
		for _, e := range entries {
			status := "due"
			if e.Paid {
				status = "paid"
			}
			fmt.Printf("  %-12s %8.2f %-6s %s\n", e.ID, float64(e.AmountCents)/100, status, e.Description)
		}
	case args[0] == "record" && len(args) >= 4:
		cents, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			fmt.Printf("invalid amount %q\n", args[2])
			return
		}
		entry, err := c.payments.Record(ctx, toc.LedgerEntry{
			PlayerID:    args[1],
			AmountCents: cents,
			Description: strings.Join(args[3:], " "),
		})
		if err != nil {
			printErr(err)
			return
		}
		fmt.Printf("recorded %s\n", entry.ID)
	case args[0] == "receipt" && len(args) >= 3:
		f, err := os.Open(args[2])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		defer f.Close()
		receipt, err := c.payments.UploadReceipt(ctx, args[1], filepath.Base(args[2]), f, strings.Join(args[3:], " "))
		if err != nil {
			printErr(err)
			return
		}
		fmt.Printf("uploaded %s\n", receipt.ID)
	default:
		fmt.Println("usage: payments [record <player-id> <cents> <description...> | receipt <entry-id> <file> [note...]]")
	}
}

func (c *console) cmdSchedule(ctx context.Context, args []string) {
	switch {
	case len(args) == 0:
		matches, err := c.schedule.List(ctx)
		if err != nil {
			printErr(err)
			return
		}
		for _, m := range matches {
			line := fmt.Sprintf("  %-12s vs %-20s %s", m.ID, m.Opponent, m.StartsAt.Local().Format("Mon Jan 2 15:04"))
			if m.Recurrence != "" {
				line += fmt.Sprintf(" (repeats: %s)", m.Recurrence)
			}
			fmt.Println(line)
		}
	case args[0] == "next" && len(args) >= 2:
		n := 3
		if len(args) >= 3 {
			if parsed, err := strconv.Atoi(args[2]); err == nil && parsed > 0 {
				n = parsed
			}
		}
		matches, err := c.schedule.List(ctx)
		if err != nil {
			printErr(err)
			return
		}
		for _, m := range matches {
			if m.ID != args[1] {
				continue
			}
			times, err := c.schedule.NextOccurrences(m, time.Now(), n)
			if err != nil {
				printErr(err)
				return
			}
			for _, ts := range times {
				fmt.Printf("  %s\n", ts.Local().Format("Mon Jan 2 15:04"))
			}
			return
		}
		fmt.Printf("no match %q\n", args[1])
	default:
		fmt.Println("usage: schedule [next <match-id> [n]]")
	}
}

func (c *console) cmdSettings(ctx context.Context, args []string) {
	settings, err := c.settings.Get(ctx)
	if err != nil {
		printErr(err)
		return
	}
	fmt.Printf("  team:     %s\n  region:   %s\n  timezone: %s\n  public:   %t\n",
		settings.TeamName, settings.Region, settings.Timezone, settings.PublicProfile)
}

func (c *console) cmdChat(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: chat <message...>")
		return
	}
	if _, err := c.channel.Send(ctx, "console", strings.Join(args, " ")); err != nil {
		printErr(err)
	}
}
