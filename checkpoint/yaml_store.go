package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const yamlExt = ".yaml"

// YAMLStore は、スロットごとに1つの YAML ファイルへ保存する Store です。
type YAMLStore struct {
	dir string
}

// NewYAMLStore は、dataDir/checkpoints に保存する YAMLStore を生成します。
func NewYAMLStore(dataDir string) *YAMLStore {
	return &YAMLStore{dir: filepath.Join(dataDir, "checkpoints")}
}

func (s *YAMLStore) path(slot string) string {
	return filepath.Join(s.dir, slot+yamlExt)
}

// Save は、一時ファイルに書いてから置き換えるので、失敗しても前の保存は壊れません。
func (s *YAMLStore) Save(ctx context.Context, cp Checkpoint) error {
	cp.normalize()
	if err := cp.Validate(); err != nil {
		return &PersistenceError{Op: "save", Slot: cp.Slot, Err: err}
	}
	data, err := yaml.Marshal(cp)
	if err != nil {
		return &PersistenceError{Op: "save", Slot: cp.Slot, Err: fmt.Errorf("marshal: %w", err)}
	}
	if err := writeAtomic(s.dir, s.path(cp.Slot), data); err != nil {
		return &PersistenceError{Op: "save", Slot: cp.Slot, Err: err}
	}
	return nil
}

func (s *YAMLStore) Load(ctx context.Context, slot string) (Checkpoint, error) {
	if !ValidSlot(slot) {
		return Checkpoint{}, &PersistenceError{Op: "load", Slot: slot, Err: ErrNotFound}
	}
	cp, err := readYAML(s.path(slot))
	if err != nil {
		return Checkpoint{}, &PersistenceError{Op: "load", Slot: slot, Err: err}
	}
	return cp, nil
}

// List は、読めないファイルを警告して読み飛ばします。
func (s *YAMLStore) List(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), yamlExt) {
			continue
		}
		cp, err := readYAML(filepath.Join(s.dir, e.Name()))
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable checkpoint", "file", e.Name(), "error", err)
			continue
		}
		infos = append(infos, cp.Info())
	}
	sortInfos(infos)
	return infos, nil
}

func (s *YAMLStore) Delete(ctx context.Context, slot string) error {
	if !ValidSlot(slot) {
		return &PersistenceError{Op: "delete", Slot: slot, Err: ErrNotFound}
	}
	err := os.Remove(s.path(slot))
	if errors.Is(err, os.ErrNotExist) {
		return &PersistenceError{Op: "delete", Slot: slot, Err: ErrNotFound}
	}
	if err != nil {
		return &PersistenceError{Op: "delete", Slot: slot, Err: err}
	}
	return nil
}

// Export は、チェックポイントを dir に「名前_日時.yaml」として書き出し、そのパスを返します。
func (s *YAMLStore) Export(cp Checkpoint, dir string) (string, error) {
	cp.normalize()
	data, err := yaml.Marshal(cp)
	if err != nil {
		return "", &PersistenceError{Op: "export", Slot: cp.Slot, Err: err}
	}
	name := fmt.Sprintf("%s_%s%s", SanitizeName(cp.Slot), cp.SavedAt.Format("20060102_150405"), yamlExt)
	path := filepath.Join(dir, name)
	if err := writeAtomic(dir, path, data); err != nil {
		return "", &PersistenceError{Op: "export", Slot: cp.Slot, Err: err}
	}
	return path, nil
}

func readYAML(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to read checkpoint file %s: %w", path, err)
	}
	var cp Checkpoint
	if err := yaml.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint file %s: %w", path, err)
	}
	cp.normalize()
	if err := cp.Validate(); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

func writeAtomic(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

var _ Store = (*YAMLStore)(nil)
