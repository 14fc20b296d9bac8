package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/creditchat-backend/internal/data/repos"
	types "github.com/yungbote/creditchat-backend/internal/domain"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

type agentsFile struct {
	Agents []*types.Agent `yaml:"agents"`
}

// ParseAgents decodes an agents seed document:
//
//	agents:
//	  - name: Pirate
//	    prompt: You are a pirate
//	    temperature: 0.9
//	    level: 1
func ParseAgents(r io.Reader) ([]*types.Agent, error) {
	var f agentsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode agents: %w", err)
	}
	seen := make(map[string]bool, len(f.Agents))
	for i, a := range f.Agents {
		if a == nil {
			return nil, fmt.Errorf("agent #%d: empty entry", i+1)
		}
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			return nil, fmt.Errorf("agent #%d: name is required", i+1)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("agent %q: duplicate name", a.Name)
		}
		seen[a.Name] = true
		if a.Temperature < 0 || a.Temperature > 2 {
			return nil, fmt.Errorf("agent %q: temperature %v out of range [0,2]", a.Name, a.Temperature)
		}
		if a.Temperature == 0 {
			a.Temperature = types.DefaultTemperature
		}
		if a.Level < 0 {
			return nil, fmt.Errorf("agent %q: negative level", a.Name)
		}
		if a.Type == "" {
			a.Type = "chat"
		}
	}
	return f.Agents, nil
}

// SeedAgents upserts the agents in path by name and returns how many were
// written.
func SeedAgents(ctx context.Context, log *logger.Logger, agents repos.AgentRepo, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open agents file: %w", err)
	}
	defer f.Close()

	parsed, err := ParseAgents(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if err := agents.UpsertByName(ctx, nil, parsed); err != nil {
		return 0, fmt.Errorf("upsert agents: %w", err)
	}
	log.Info("Seeded agents", "file", path, "count", len(parsed))
	return len(parsed), nil
}
