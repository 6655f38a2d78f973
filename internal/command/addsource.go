package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/franz/musicsync/internal/store"
	"github.com/franz/musicsync/internal/util"
)

type addSourcePayload struct {
	Username     string `json:"username"`
	FriendlyName string `json:"friendlyname"`
}

// AddSource registers a peer by its stable name, or marks a known one
// online and refreshes its friendly name.
type AddSource struct {
	logged

	Username     string
	FriendlyName string

	// Origin is the peer the op was replayed from; empty for local ops
	Origin string

	// OnDone receives the source id and, for a known source, the friendly
	// name it had before this command
	OnDone func(id int64, friendlyName string)

	id          int64
	resultFName string
}

// NewAddSource creates an AddSource command
func NewAddSource(username, friendlyName string) *AddSource {
	return &AddSource{Username: username, FriendlyName: friendlyName}
}

// Kind implements Command
func (c *AddSource) Kind() Kind { return KindAddSource }

// Mutates implements Command
func (c *AddSource) Mutates() bool { return true }

// Result returns the source id and the friendly name reported to OnDone
func (c *AddSource) Result() (int64, string) { return c.id, c.resultFName }

// Exec implements Command
func (c *AddSource) Exec(ctx context.Context, env *Env, w *store.Writer) error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: addsource without username", util.ErrMalformed)
	}

	src, err := w.SourceByName(ctx, c.Username)
	if err != nil {
		return err
	}

	if src != nil {
		if err := w.TouchSource(ctx, src.ID, c.FriendlyName); err != nil {
			return err
		}
		c.id = src.ID
		c.resultFName = src.FriendlyName
		return c.resolveOrigin(ctx, w)
	}

	id, err := w.InsertSource(ctx, c.Username, c.FriendlyName)
	if err != nil {
		return err
	}
	util.DebugLog("Inserted new source to DB, id: %d name: %s", id, c.Username)

	c.id = id
	c.resultFName = c.FriendlyName
	return c.resolveOrigin(ctx, w)
}

// resolveOrigin attributes a replayed op to the peer it came from, so it is
// never published again as a local op
func (c *AddSource) resolveOrigin(ctx context.Context, w *store.Writer) error {
	switch c.Origin {
	case "":
		c.sourceID = store.LocalSourceID
	case c.Username:
		c.sourceID = c.id
	default:
		id, err := resolveSource(ctx, w, c.Origin)
		if err != nil {
			return err
		}
		c.sourceID = id
	}
	return nil
}

// PostCommit implements Command
func (c *AddSource) PostCommit(env *Env) {
	if env != nil && env.Sources != nil {
		env.Sources.SourceOnline(c.id, c.Username, c.FriendlyName)
	}
	if c.OnDone != nil {
		c.OnDone(c.id, c.resultFName)
	}
}

// Export implements Loggable. The payload is the input unchanged.
func (c *AddSource) Export() (*Envelope, error) {
	return NewEnvelope(c.GUID(), KindAddSource, c.Singleton(), addSourcePayload{
		Username:     c.Username,
		FriendlyName: c.FriendlyName,
	})
}
