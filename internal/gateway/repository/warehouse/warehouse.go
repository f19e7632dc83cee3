package warehouse

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Warehouse is the analytics sink. Inserts are re-runnable; every call
// returns a fresh job id.
type Warehouse interface {
	InsertRow(ctx context.Context, dataset, table string, row any) (jobID string, err error)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func tableName(dataset, table string) (string, error) {
	dataset = strings.TrimSpace(dataset)
	table = strings.TrimSpace(table)
	if !identPattern.MatchString(dataset) {
		return "", fmt.Errorf("invalid dataset name %q", dataset)
	}
	if !identPattern.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return dataset + "__" + table, nil
}
