package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Modification is one audited self-modification (file edit, genesis prompt
// update). The guard's hourly rate limit counts these rows.
type Modification struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Operation string `json:"operation"`
	SizeBytes int64  `json:"sizeBytes"`
	CreatedAt string `json:"createdAt"`
}

// InsertModification records a self-modification.
func (s *Store) InsertModification(m *Modification) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt == "" {
		m.CreatedAt = FormatTime(time.Now())
	}
	_, err := s.db.Exec(`INSERT INTO modifications (id, path, operation, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Path, m.Operation, m.SizeBytes, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert modification: %w", err)
	}
	return nil
}

// CountModificationsSince counts modifications at or after t.
func (s *Store) CountModificationsSince(t time.Time) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM modifications WHERE created_at >= ?", FormatTime(t)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count modifications: %w", err)
	}
	return n, nil
}

// DistressSignal is a persisted cry for funding.
type DistressSignal struct {
	ID           string `json:"id"`
	Reason       string `json:"reason"`
	Tier         string `json:"tier"`
	CreditsCents int64  `json:"creditsCents"`
	CreatedAt    string `json:"createdAt"`
}

// InsertDistressSignal records a distress signal and points last_distress
// at it.
func (s *Store) InsertDistressSignal(d *DistressSignal) error {
	if d.ID == "" {
		d.ID = NewID()
	}
	if d.CreatedAt == "" {
		d.CreatedAt = FormatTime(time.Now())
	}
	_, err := s.db.Exec(`INSERT INTO distress_signals (id, reason, tier, credits_cents, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.Reason, d.Tier, d.CreditsCents, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert distress signal: %w", err)
	}
	return s.SetKV(KeyLastDistress, d.CreatedAt+" "+d.Reason)
}

// LatestDistressSignal returns the newest distress signal, or nil.
func (s *Store) LatestDistressSignal() (*DistressSignal, error) {
	var d DistressSignal
	err := s.db.QueryRow(`SELECT id, reason, tier, credits_cents, created_at
		FROM distress_signals ORDER BY created_at DESC, id DESC LIMIT 1`).
		Scan(&d.ID, &d.Reason, &d.Tier, &d.CreditsCents, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query distress signals: %w", err)
	}
	return &d, nil
}

// Child is a spawned automaton this one is responsible for.
type Child struct {
	Address   string `json:"address"`
	Name      string `json:"name"`
	Role      string `json:"role,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// InsertChild records a spawned child.
func (s *Store) InsertChild(c *Child) error {
	now := FormatTime(time.Now())
	if c.CreatedAt == "" {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = "spawned"
	}
	_, err := s.db.Exec(`INSERT INTO children (address, name, role, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET name = excluded.name, role = excluded.role,
			status = excluded.status, updated_at = excluded.updated_at`,
		c.Address, c.Name, nullable(c.Role), c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert child: %w", err)
	}
	return nil
}

// ListChildren returns all children, oldest first.
func (s *Store) ListChildren() ([]Child, error) {
	rows, err := s.db.Query(`SELECT address, name, role, status, created_at, updated_at
		FROM children ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var children []Child
	for rows.Next() {
		var c Child
		var role sql.NullString
		if err := rows.Scan(&c.Address, &c.Name, &role, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan child: %w", err)
		}
		c.Role = role.String
		children = append(children, c)
	}
	return children, rows.Err()
}

// GetChild returns one child by address.
func (s *Store) GetChild(address string) (*Child, bool, error) {
	var c Child
	var role sql.NullString
	err := s.db.QueryRow(`SELECT address, name, role, status, created_at, updated_at
		FROM children WHERE address = ?`, address).
		Scan(&c.Address, &c.Name, &role, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get child: %w", err)
	}
	c.Role = role.String
	return &c, true, nil
}

// Skill is one upserted capability document.
type Skill struct {
	Name      string `json:"name"`
	Content   string `json:"content"`
	Version   int    `json:"version"`
	UpdatedAt string `json:"updatedAt"`
}

// UpsertSkill creates or replaces a skill, bumping its version on update.
func (s *Store) UpsertSkill(name, content string) (*Skill, error) {
	now := FormatTime(time.Now())
	_, err := s.db.Exec(`INSERT INTO skills (name, content, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(name) DO UPDATE SET content = excluded.content,
			version = skills.version + 1, updated_at = excluded.updated_at`,
		name, content, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert skill: %w", err)
	}

	var sk Skill
	if err := s.db.QueryRow("SELECT name, content, version, updated_at FROM skills WHERE name = ?", name).
		Scan(&sk.Name, &sk.Content, &sk.Version, &sk.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to read back skill: %w", err)
	}
	return &sk, nil
}

// ListSkills returns all skills ordered by name.
func (s *Store) ListSkills() ([]Skill, error) {
	rows, err := s.db.Query("SELECT name, content, version, updated_at FROM skills ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}
	defer rows.Close()

	var skills []Skill
	for rows.Next() {
		var sk Skill
		if err := rows.Scan(&sk.Name, &sk.Content, &sk.Version, &sk.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		skills = append(skills, sk)
	}
	return skills, rows.Err()
}
