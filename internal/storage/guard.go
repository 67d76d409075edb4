package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrPathViolation - путь артефакта вне разрешенной зоны.
var ErrPathViolation = errors.New("artifact path violates storage policy")

// GuardPath проверяет путь, который вернул внешний генератор, до того как он
// попадет в базу. Путь должен быть относительным, без сегментов "..", и
// лежать под allowedPrefix. Возвращает очищенный путь.
func GuardPath(allowedPrefix, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathViolation)
	}
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: NUL byte", ErrPathViolation)
	}

	normalized := strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(normalized, "/") || hasDriveLetter(normalized) || strings.Contains(normalized, "://") {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathViolation, p)
	}
	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: parent segment in %q", ErrPathViolation, p)
		}
	}

	cleaned := path.Clean(normalized)
	prefix := strings.TrimSuffix(path.Clean(strings.ReplaceAll(allowedPrefix, "\\", "/")), "/") + "/"
	if !strings.HasPrefix(cleaned, prefix) {
		return "", fmt.Errorf("%w: %q is outside %q", ErrPathViolation, p, prefix)
	}
	return cleaned, nil
}

func hasDriveLetter(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}
