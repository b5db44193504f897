package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File — хранилище CLI в JSON-файле (по умолчанию ~/.traffic-admin/storage.json).
// Каждое изменение сразу записывается на диск через временный файл и rename.
type File struct {
	mu   sync.Mutex
	path string
	mem  *Memory
}

// OpenFile открывает файловое хранилище. Отсутствующий файл — пустое хранилище.
func OpenFile(path string) (*File, error) {
	values := map[string]string{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("чтение хранилища %s: %w", path, err)
	default:
		if len(data) > 0 {
			if err := json.Unmarshal(data, &values); err != nil {
				return nil, fmt.Errorf("разбор хранилища %s: %w", path, err)
			}
		}
	}

	return &File{path: path, mem: NewMemory(values)}, nil
}

// Path возвращает путь к файлу хранилища.
func (f *File) Path() string {
	return f.path
}

// Get возвращает значение ключа.
func (f *File) Get(key string) (string, bool) {
	return f.mem.Get(key)
}

// Set записывает значение и сохраняет файл.
func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mem.Set(key, value); err != nil {
		return err
	}
	return f.flush()
}

// Remove удаляет ключи и сохраняет файл.
func (f *File) Remove(keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mem.Remove(keys...); err != nil {
		return err
	}
	return f.flush()
}

// flush записывает текущее состояние на диск. Вызывается под f.mu.
func (f *File) flush() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("создание каталога хранилища: %w", err)
	}

	data, err := json.MarshalIndent(f.mem.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация хранилища: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("запись хранилища: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("замена файла хранилища: %w", err)
	}
	return nil
}
