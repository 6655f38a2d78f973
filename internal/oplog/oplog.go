// Package oplog persists mutating commands in redacted form and replicates
// them between peers over redis pub/sub.
package oplog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/franz/musicsync/internal/command"
	"github.com/franz/musicsync/internal/store"
)

// Append writes the redacted export of cmd to the oplog within w's transaction.
// It must run after cmd.Exec so ids and the source are known.
func Append(ctx context.Context, w *store.Writer, cmd command.Loggable) (*store.OplogEntry, error) {
	env, err := cmd.Export()
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", cmd.Kind(), err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", cmd.Kind(), err)
	}

	entry := &store.OplogEntry{
		SourceID:  cmd.SourceID(),
		GUID:      env.GUID,
		Command:   string(env.Kind),
		Singleton: env.Singleton,
		JSON:      string(data),
	}
	if err := w.AppendOplog(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
