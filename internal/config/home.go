package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Home is the automaton's on-disk residence. Layout:
//
//	<dir>/config.json    runtime configuration (0600)
//	<dir>/identity.json  persistent identity (0600)
//	<dir>/wallet.json    opaque key material (0600)
//	<dir>/genesis.md     genesis prompt
//	<dir>/state.db       state store (plus -wal/-shm sidecars)
//	<dir>/logs/          log output
//	<dir>/KILL           kill-switch marker, created externally
type Home struct {
	Dir string
}

// DefaultHomeDir resolves the automaton home. AUTOMA_HOME wins; otherwise
// ~/.automa.
func DefaultHomeDir() string {
	if dir := os.Getenv("AUTOMA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".automa"
	}
	return filepath.Join(home, ".automa")
}

// NewHome ensures the home directory exists with owner-only permissions.
func NewHome(dir string) (*Home, error) {
	if dir == "" {
		dir = DefaultHomeDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return &Home{Dir: dir}, nil
}

func (h *Home) ConfigPath() string     { return filepath.Join(h.Dir, "config.json") }
func (h *Home) IdentityPath() string   { return filepath.Join(h.Dir, "identity.json") }
func (h *Home) WalletPath() string     { return filepath.Join(h.Dir, "wallet.json") }
func (h *Home) GenesisPath() string    { return filepath.Join(h.Dir, "genesis.md") }
func (h *Home) DatabasePath() string   { return filepath.Join(h.Dir, "state.db") }
func (h *Home) KillSwitchPath() string { return filepath.Join(h.Dir, "KILL") }
func (h *Home) HeartbeatsPath() string { return filepath.Join(h.Dir, "heartbeats.yaml") }

// Identity is the persistent self-description of this automaton.
type Identity struct {
	Name           string `json:"name"`
	Address        string `json:"address"`
	CreatorAddress string `json:"creator_address"`
	ParentAddress  string `json:"parent_address,omitempty"`
	Role           string `json:"role,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// LoadIdentity reads identity.json, deriving a fresh identity from the
// config on first boot.
func (h *Home) LoadIdentity(cfg *Config) (*Identity, error) {
	data, err := os.ReadFile(h.IdentityPath())
	if err != nil {
		if os.IsNotExist(err) {
			id := &Identity{
				Name:           cfg.Name,
				Address:        cfg.Address,
				CreatorAddress: cfg.CreatorAddress,
				Role:           cfg.Role,
				CreatedAt:      time.Now().UTC().Format(time.RFC3339),
			}
			if err := h.SaveIdentity(id); err != nil {
				return nil, err
			}
			return id, nil
		}
		return nil, fmt.Errorf("failed to read identity: %w", err)
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("failed to parse identity: %w", err)
	}
	return &id, nil
}

// SaveIdentity writes identity.json owner-readable only.
func (h *Home) SaveIdentity(id *Identity) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}
	if err := os.WriteFile(h.IdentityPath(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write identity: %w", err)
	}
	return nil
}

// Wallet is opaque key material. The core never interprets the key; it only
// guards the file.
type Wallet struct {
	PrivateKey string `json:"privateKey"`
	CreatedAt  string `json:"createdAt"`
}

// LoadWallet reads wallet.json. A missing wallet is not an error; the
// automaton can run unfunded.
func (h *Home) LoadWallet() (*Wallet, error) {
	data, err := os.ReadFile(h.WalletPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read wallet: %w", err)
	}
	var w Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse wallet: %w", err)
	}
	return &w, nil
}

// SaveWallet writes wallet.json owner-readable only.
func (h *Home) SaveWallet(w *Wallet) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal wallet: %w", err)
	}
	if err := os.WriteFile(h.WalletPath(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write wallet: %w", err)
	}
	return nil
}

// LoadGenesisPrompt reads genesis.md, or returns a minimal default when the
// automaton has not been given one.
func (h *Home) LoadGenesisPrompt() string {
	data, err := os.ReadFile(h.GenesisPath())
	if err != nil || len(data) == 0 {
		return "You are a sovereign automaton. Survive, be useful, and keep your credit balance positive."
	}
	return string(data)
}

// WriteGenesisPrompt replaces genesis.md. Callers are responsible for
// auditing the change as a self-modification.
func (h *Home) WriteGenesisPrompt(content string) error {
	if err := os.WriteFile(h.GenesisPath(), []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write genesis prompt: %w", err)
	}
	return nil
}

// GenesisConfig is the bootstrap document handed to a spawned child.
type GenesisConfig struct {
	Name           string `json:"name"`
	GenesisPrompt  string `json:"genesisPrompt"`
	CreatorMessage string `json:"creatorMessage,omitempty"`
	CreatorAddress string `json:"creatorAddress"`
	ParentAddress  string `json:"parentAddress"`
	Role           string `json:"role,omitempty"`
}
