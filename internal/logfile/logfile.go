// Пакет logfile — файл лога для /logger: открытие на дозапись и чтение хвоста.
package logfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// tailWindow — сколько байт с конца файла читается для поиска последних строк.
const tailWindow = 64 * 1024

// ErrNoLogFile — файл лога не настроен или не существует.
var ErrNoLogFile = errors.New("файл лога не найден")

// Open открывает файл лога на дозапись, создавая его при необходимости.
func Open(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("открытие файла лога %s: %w", path, err)
	}
	return f, nil
}

// Tail возвращает последние n непустых строк файла (не больше tailWindow байт с конца).
func Tail(path string, n int) ([]string, error) {
	if path == "" {
		return nil, ErrNoLogFile
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoLogFile
		}
		return nil, fmt.Errorf("чтение файла лога: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("чтение файла лога: %w", err)
	}

	offset := max(info.Size()-tailWindow, 0)
	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("чтение файла лога: %w", err)
	}

	// Первая строка окна может быть обрезана.
	if offset > 0 {
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			buf = buf[i+1:]
		}
	}

	var lines []string
	for _, line := range strings.Split(string(buf), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
