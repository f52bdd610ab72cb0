package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wcferry/client"
	"wcferry/pkg/config"
	"wcferry/pkg/logger"
	"wcferry/pkg/protocol"
	"wcferry/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "Config file path (optional)")
	port := flag.Int("port", 0, "Command port override")
	attach := flag.Bool("attach", false, "Attach to an already-injected peer instead of injecting")
	send := flag.String("send", "", "One-shot send as receiver:text, then exit")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "Log format: text or json")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.CommandPort = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}

	logger.Init(logger.LogLevel(cfg.Logging.Level), cfg.Logging.Format)
	log := logger.Get()
	log.InfoWith("starting", "config", cfg.String())

	opts := []client.Option{}
	if *attach {
		opts = append(opts, client.WithAttach())
	}
	if cfg.History.Enabled {
		store, err := storage.NewHistoryStore(cfg.History.Path)
		if err != nil {
			log.ErrorWithErr("history store unavailable", err, "path", cfg.History.Path)
			os.Exit(1)
		}
		opts = append(opts, client.WithHistory(store))
	}

	c := client.New(cfg, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Open(ctx); err != nil {
		log.ErrorWithErr("open failed", err)
		os.Exit(1)
	}
	defer c.Close()

	if *send != "" {
		receiver, text, ok := strings.Cut(*send, ":")
		if !ok || receiver == "" {
			fmt.Fprintln(os.Stderr, "usage: -send receiver:text")
			os.Exit(2)
		}
		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := c.SendText(sendCtx, receiver, text, nil); err != nil {
			log.ErrorWithErr("send failed", err)
			os.Exit(1)
		}
		log.InfoWith("sent", "receiver", receiver)
		return
	}

	// Listen mode: print incoming messages until interrupted.
	sub := c.OnChatMessage(func(msg *protocol.ChatMessage) {
		fmt.Printf("[%d] %s: %s\n", msg.ID, msg.Sender, msg.Content)
	})
	defer c.Unsubscribe(sub)

	log.InfoWith("listening for messages, Ctrl-C to exit")
	<-ctx.Done()
	if dropped := sub.Dropped(); dropped > 0 {
		log.WarnWith("events dropped while listening", "count", dropped)
	}
}
