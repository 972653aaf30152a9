package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"triarena/server"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

// wireMessages 所有线上消息，按方向分组
var wireMessages = []struct {
	title string
	desc  string
	v     any
}{
	{"state (client)", "Client-reported full state, relay policy.", new(server.StateMessage)},
	{"input", "Client input intent, authoritative policy.", new(server.InputMessage)},
	{"fire (client)", "Special weapon fire, relayed to other players.", new(server.FireMessage)},
	{"damage (client)", "Self-reported damage claim.", new(server.DamageMessage)},
	{"ping", "Keep-alive, no reply.", new(server.PingMessage)},
	{"hello", "Sent once after join with the assigned id and zone.", new(server.HelloMessage)},
	{"players", "Relay policy snapshot.", new(server.PlayersMessage)},
	{"state (server)", "Authoritative policy snapshot.", new(server.SimStateMessage)},
	{"fire (server)", "Fire relay, never echoed to the sender.", new(server.FireRelay)},
	{"damage (server)", "Damage relay, playerId is the claimant.", new(server.DamageRelay)},
	{"error", "Protocol error reply to the offending sender.", new(server.ErrorMessage)},
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "TriArena wire protocol",
		Description: "JSON text frames exchanged over /connect.",
	}
	for _, m := range wireMessages {
		s := reflector.Reflect(m.v)
		s.Version = ""
		s.Title = m.title
		s.Description = m.desc
		root.OneOf = append(root.OneOf, s)
	}
	return root
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	return os.Rename(tmpPath, outPath)
}
