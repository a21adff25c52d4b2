package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"voiceagent/config"
	"voiceagent/conversation"
)

// credential est la part d'un client API réglable depuis le terminal.
type credential interface {
	HasCredential() bool
	SetAPIKey(key string)
}

type apiKey struct {
	name   string // argument de la commande "key"
	label  string
	client credential
}

type terminal struct {
	out      io.Writer
	settings conversation.Settings
	session  *conversation.Session
	// turn lance un tour ; agent.RunTurn en production.
	turn func(ctx context.Context, s *conversation.Session, set conversation.Settings) conversation.Outcome
	keys []apiKey
}

// readLines publie les lignes de r, sans espaces autour, jusqu'à EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()
	return lines
}

func next(ctx context.Context, lines <-chan string) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case l, ok := <-lines:
		return l, ok
	}
}

// run lit les commandes jusqu'à "q", EOF ou annulation.
func (t *terminal) run(ctx context.Context, lines <-chan string) {
	if !t.promptKeys(ctx, lines) {
		return
	}
	t.printHelp()
	for {
		fmt.Fprint(t.out, "> ")
		line, ok := next(ctx, lines)
		if !ok {
			fmt.Fprintln(t.out)
			return
		}
		if !t.handle(ctx, line) {
			return
		}
	}
}

// promptKeys demande chaque clé absente. Entrée vide : on passe.
func (t *terminal) promptKeys(ctx context.Context, lines <-chan string) bool {
	for _, k := range t.keys {
		if k.client.HasCredential() {
			continue
		}
		fmt.Fprintf(t.out, "%s API key (Enter to skip): ", k.label)
		line, ok := next(ctx, lines)
		if !ok {
			fmt.Fprintln(t.out)
			return false
		}
		if line != "" {
			k.client.SetAPIKey(line)
			fmt.Fprintf(t.out, "%s key set.\n", k.label)
		}
	}
	return true
}

// handle exécute une commande. false : quitter.
func (t *terminal) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
		printOutcome(t.out, t.turn(ctx, t.session, t.settings))
	case "n", "new":
		t.session.Reset()
		fmt.Fprintln(t.out, "New conversation.")
	case "l", "logs":
		for _, e := range t.session.Logs(20) {
			fmt.Fprintln(t.out, e)
		}
	case "t", "threshold":
		v, ok := parseNumber(arg)
		if !ok {
			fmt.Fprintf(t.out, "Usage: t <%.0f-%.0f>\n", config.MinVADThreshold, config.MaxVADThreshold)
			break
		}
		t.settings.Threshold = config.ClampThreshold(v)
		fmt.Fprintf(t.out, "Threshold set to %.0f\n", t.settings.Threshold)
	case "s", "silence":
		v, ok := parseNumber(arg)
		if !ok {
			fmt.Fprintf(t.out, "Usage: s <%.1f-%.1f seconds>\n", config.MinSilenceDuration, config.MaxSilenceDuration)
			break
		}
		t.settings.SilenceDuration = config.ClampSilenceDuration(v)
		fmt.Fprintf(t.out, "Silence duration set to %.1fs\n", t.settings.SilenceDuration)
	case "p", "play":
		t.settings.Play = !t.settings.Play
		fmt.Fprintf(t.out, "Playback %v\n", onOff(t.settings.Play))
	case "key":
		t.setKey(arg)
	case "h", "help", "?":
		t.printHelp()
	case "q", "quit", "exit":
		return false
	default:
		fmt.Fprintf(t.out, "Unknown command %q\n", line)
	}
	return true
}

func (t *terminal) setKey(arg string) {
	name, key, _ := strings.Cut(arg, " ")
	key = strings.TrimSpace(key)
	for _, k := range t.keys {
		if strings.EqualFold(name, k.name) && key != "" {
			k.client.SetAPIKey(key)
			fmt.Fprintf(t.out, "%s key set.\n", k.label)
			return
		}
	}
	names := make([]string, len(t.keys))
	for i, k := range t.keys {
		names[i] = k.name
	}
	fmt.Fprintf(t.out, "Usage: key %s <api key>\n", strings.Join(names, "|"))
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (t *terminal) printHelp() {
	s := t.settings
	fmt.Fprintf(t.out, "Voice agent (threshold %.0f, silence %.1fs, playback %s)\n", s.Threshold, s.SilenceDuration, onOff(s.Play))
	fmt.Fprintln(t.out, "  Enter        start listening")
	fmt.Fprintln(t.out, "  t <n>        set the VAD threshold")
	fmt.Fprintln(t.out, "  s <sec>      set the silence duration")
	fmt.Fprintln(t.out, "  p            toggle playback")
	fmt.Fprintln(t.out, "  key <k> <v>  set an API key (deepgram, groq)")
	fmt.Fprintln(t.out, "  n            start a new conversation")
	fmt.Fprintln(t.out, "  l            show the last 20 log lines")
	fmt.Fprintln(t.out, "  q            quit")
	fmt.Fprintln(t.out, "Ctrl+C while listening stops the recording.")
}

func printOutcome(w io.Writer, out conversation.Outcome) {
	if out.Transcript != "" {
		fmt.Fprintf(w, "You: %s\n", out.Transcript)
	}
	if out.Reply != "" {
		fmt.Fprintf(w, "AI:  %s\n", out.Reply)
	}
	if out.AudioPath != "" {
		fmt.Fprintf(w, "Audio: %s\n", out.AudioPath)
	}
	fmt.Fprintln(w, out.Status)
}
