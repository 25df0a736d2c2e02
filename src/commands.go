package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"personal/botkit/src/client"
	"personal/botkit/src/handlers"
	"personal/botkit/src/issue"
)

func newCommandsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "Compare local command handlers with the application's global commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			set, err := handlers.LoadProject(cfg.ProjectDir, issue.NewDefaultReporter())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return listCommands(ctx, cmd.OutOrStdout(), client.New(cfg.Token(), client.WithBaseURL(cfg.APIURL)), set.Commands())
		},
	}
}

type commandStatus struct {
	name       string
	registered bool
	local      bool
}

func listCommands(ctx context.Context, w io.Writer, rest *client.Client, local []string) error {
	app, err := rest.CurrentApplication(ctx)
	if err != nil {
		return err
	}
	remote, err := rest.GetGlobalApplicationCommands(ctx, app.ID)
	if err != nil {
		return err
	}

	rows := compareCommands(remote, local)
	for _, r := range rows {
		status := "ok"
		switch {
		case !r.registered:
			status = "not registered"
		case !r.local:
			status = "no handler"
		}
		if _, err := fmt.Fprintf(w, "%-32s %s\n", r.name, status); err != nil {
			return err
		}
	}
	return nil
}

// compareCommands joins registered chat input commands with local handlers
// by name.
func compareCommands(remote []client.ApplicationCommand, local []string) []commandStatus {
	byName := make(map[string]*commandStatus)
	for _, c := range remote {
		if c.Type != 0 && c.Type != client.ChatInputCommand {
			continue
		}
		byName[c.Name] = &commandStatus{name: c.Name, registered: true}
	}
	for _, name := range local {
		if s, ok := byName[name]; ok {
			s.local = true
			continue
		}
		byName[name] = &commandStatus{name: name, local: true}
	}

	rows := make([]commandStatus, 0, len(byName))
	for _, s := range byName {
		rows = append(rows, *s)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })
	return rows
}
