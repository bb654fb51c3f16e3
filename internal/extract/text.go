package extract

import (
	"context"
	"os"
)

func loadText(_ context.Context, path string) ([]Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []Section{{Text: string(data)}}, nil
}
