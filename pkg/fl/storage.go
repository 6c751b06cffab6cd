package fl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/snappy"
)

// PersistentStorage keeps round reports as JSON files and global model
// checkpoints as snappy compressed CBOR.
type PersistentStorage struct {
	roundsDir string
	modelsDir string
	mu        sync.RWMutex
}

func NewPersistentStorage(roundsDir, modelsDir string) (*PersistentStorage, error) {
	if err := os.MkdirAll(roundsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create rounds directory: %w", err)
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return &PersistentStorage{
		roundsDir: roundsDir,
		modelsDir: modelsDir,
	}, nil
}

// RoundID names the file of one round of a run.
func RoundID(runID string, round int) string {
	return fmt.Sprintf("%s_%04d", runID, round)
}

func (ps *PersistentStorage) SaveRound(report RoundReport) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	roundID := RoundID(report.RunID, report.Round)
	roundFile, err := ps.roundFile(roundID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal round report: %w", err)
	}

	if err := os.WriteFile(roundFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write round file: %w", err)
	}

	return nil
}

func (ps *PersistentStorage) LoadRound(roundID string) (RoundReport, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	roundFile, err := ps.roundFile(roundID)
	if err != nil {
		return RoundReport{}, err
	}

	data, err := os.ReadFile(roundFile)
	if err != nil {
		return RoundReport{}, fmt.Errorf("failed to read round file: %w", err)
	}

	var report RoundReport
	if err := json.Unmarshal(data, &report); err != nil {
		return RoundReport{}, fmt.Errorf("failed to unmarshal round report: %w", err)
	}

	return report, nil
}

// ListRounds returns the stored round ids in lexical order.
func (ps *PersistentStorage) ListRounds() ([]string, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	entries, err := os.ReadDir(ps.roundsDir)
	if err != nil {
		return nil, err
	}

	var roundIDs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "round_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		roundIDs = append(roundIDs, strings.TrimSuffix(strings.TrimPrefix(name, "round_"), ".json"))
	}
	slices.Sort(roundIDs)

	return roundIDs, nil
}

func (ps *PersistentStorage) SaveModel(model Model) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	data, err := cbor.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	if err := os.WriteFile(ps.modelFile(model.Version), snappy.Encode(nil, data), 0o644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	return nil
}

func (ps *PersistentStorage) LoadModel(version int) (Model, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	compressed, err := os.ReadFile(ps.modelFile(version))
	if err != nil {
		return Model{}, fmt.Errorf("failed to read model file: %w", err)
	}

	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Model{}, fmt.Errorf("failed to decompress model: %w", err)
	}

	var model Model
	if err := cbor.Unmarshal(data, &model); err != nil {
		return Model{}, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	return model, nil
}

// ListModels returns the checkpointed model versions in ascending order.
func (ps *PersistentStorage) ListModels() ([]int, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	entries, err := os.ReadDir(ps.modelsDir)
	if err != nil {
		return nil, err
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "model_v%d.cbor.sz", &version); err == nil {
			versions = append(versions, version)
		}
	}
	slices.Sort(versions)

	return versions, nil
}

func (ps *PersistentStorage) roundFile(roundID string) (string, error) {
	sanitized := sanitizeRoundID(roundID)
	if sanitized == "" {
		return "", fmt.Errorf("invalid roundID: %s", roundID)
	}

	return filepath.Join(ps.roundsDir, fmt.Sprintf("round_%s.json", sanitized)), nil
}

func (ps *PersistentStorage) modelFile(version int) string {
	return filepath.Join(ps.modelsDir, fmt.Sprintf("model_v%d.cbor.sz", version))
}

// sanitizeRoundID keeps only characters that are safe in a file name.
func sanitizeRoundID(roundID string) string {
	var b strings.Builder
	for _, r := range strings.ReplaceAll(roundID, "..", "") {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
