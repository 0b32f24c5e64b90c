package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/norfolkpine/collab-gateway/internal/authz"
)

// DevIdentity is the placeholder identity assigned to every connection while
// the dev-mode bypass is active.
const DevIdentity = "dev-user"

// Authorizer is the slice of the document service client the handshake
// consumes.
type Authorizer interface {
	ResolveIdentity(ctx context.Context, headers http.Header) (authz.Identity, error)
	FetchDocumentAbilities(ctx context.Context, documentID string, headers http.Header) (authz.Abilities, error)
}

// Request carries everything the handshake needs from the upgrade request
// and the first protocol frame. Headers are used here once and discarded.
type Request struct {
	// RoomParam is the room declared out-of-band via the ?room= query
	// parameter at connect time.
	RoomParam string
	// DocName is the document name declared in the protocol's own
	// handshake frame.
	DocName string

	Headers    http.Header
	RemoteAddr string
	UserAgent  string
	URL        string
}

// Grant is a successful handshake verdict.
type Grant struct {
	Identity string
	ReadOnly bool
}

// Handshake runs the connect-time authorization pipeline. Any step's failure
// rejects the whole connection attempt; no partial room membership occurs.
type Handshake struct {
	production bool
	authorizer Authorizer
	logger     *slog.Logger
}

func NewHandshake(logger *slog.Logger, authorizer Authorizer, production bool) *Handshake {
	return &Handshake{
		production: production,
		authorizer: authorizer,
		logger:     logger.With(slog.String("component", "handshake")),
	}
}

// Authorize decides whether the connection may join its room and in which
// mode. The pipeline order follows the room authorization contract; the one
// tolerated failure is the best-effort identity refresh at the end.
func (h *Handshake) Authorize(ctx context.Context, req *Request) (*Grant, error) {
	// Local development bypass. The loud warning for this mode is logged
	// once at startup by the config loader.
	if !h.production {
		return &Grant{Identity: DevIdentity, ReadOnly: false}, nil
	}

	if req.Headers.Get("Cookie") == "" {
		return nil, ErrUnauthenticated
	}

	identity, err := h.authorizer.ResolveIdentity(ctx, req.Headers)
	if err != nil {
		if errors.Is(err, authz.ErrUnauthenticated) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendError, err)
	}

	// The client names the document twice: once on the socket, once in the
	// protocol. A divergence means the socket was contextually authorized
	// for a different document than the one being edited.
	if req.DocName != req.RoomParam {
		h.logger.Warn("Room name mismatch, probable attack",
			slog.String("socketRoom", req.RoomParam),
			slog.String("protocolRoom", req.DocName),
			slog.String("identity", identity.UserID),
			slog.String("userAgent", req.UserAgent),
			slog.String("url", req.URL),
		)
		return nil, ErrRoomMismatch
	}

	if parsed, err := uuid.Parse(req.DocName); err != nil || parsed.Version() != 4 {
		h.logger.Warn("Invalid room name, probable attack",
			slog.String("room", req.DocName),
			slog.String("identity", identity.UserID),
			slog.String("userAgent", req.UserAgent),
			slog.String("url", req.URL),
		)
		return nil, ErrInvalidRoomName
	}

	abilities, err := h.authorizer.FetchDocumentAbilities(ctx, req.DocName, req.Headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendError, err)
	}
	if !abilities.Retrieve {
		return nil, ErrUnauthorized
	}

	grant := &Grant{
		Identity: identity.UserID,
		ReadOnly: !abilities.Update,
	}

	// Best-effort refresh. The connection is already authorized; a
	// transient identity-service hiccup here must not punish it.
	if refreshed, err := h.authorizer.ResolveIdentity(ctx, req.Headers); err != nil {
		h.logger.Warn("Identity refresh failed after authorization, keeping earlier identity",
			slog.String("identity", identity.UserID),
			slog.Any("error", err),
		)
	} else {
		grant.Identity = refreshed.UserID
	}

	return grant, nil
}
