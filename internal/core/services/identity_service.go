package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"camcast/internal/core/domain"
	"camcast/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims carries the identity inside a signed bearer token.
type Claims struct {
	UserID      domain.UserID `json:"user_id"`
	DisplayName string        `json:"display_name"`
	jwt.RegisteredClaims
}

// IdentityService validates bearer tokens and tracks which identities
// are signed in, broadcasting sign-in/out events to watchers. Sessions
// see it through per-identity bound providers.
type IdentityService struct {
	jwtSecret []byte
	tokenTTL  time.Duration

	mu       sync.Mutex
	signedIn map[domain.UserID]domain.Identity
	nextSub  int
	watchers map[int]*identityWatcher
}

// identityWatcher queues events for one subscriber. Queueing instead of
// dropping matters here: a lost sign-out would leave the session manager
// holding that identity's device and record forever.
type identityWatcher struct {
	mu      sync.Mutex
	pending []domain.IdentityEvent
	wake    chan struct{}
}

func NewIdentityService(jwtSecret string, tokenTTL time.Duration) *IdentityService {
	return &IdentityService{
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		signedIn:  make(map[domain.UserID]domain.Identity),
		watchers:  make(map[int]*identityWatcher),
	}
}

// GenerateToken issues a signed token for an identity. Identity issuance
// proper belongs to an external provider; this stands in for it so a
// presentation layer can obtain a bearer token in development setups.
func (s *IdentityService) GenerateToken(identity domain.Identity) (string, error) {
	claims := &Claims{
		UserID:      identity.ID,
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *IdentityService) ValidateToken(tokenString string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, ErrExpiredToken
		}
		return domain.Identity{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Identity{}, ErrInvalidToken
	}
	return domain.Identity{ID: claims.UserID, DisplayName: claims.DisplayName}, nil
}

// SignIn validates the token and records the identity as signed in.
// Repeat sign-ins are inert beyond refreshing the display name.
func (s *IdentityService) SignIn(tokenString string) (domain.Identity, error) {
	identity, err := s.ValidateToken(tokenString)
	if err != nil {
		return domain.Identity{}, err
	}

	s.mu.Lock()
	_, already := s.signedIn[identity.ID]
	s.signedIn[identity.ID] = identity
	s.mu.Unlock()

	if !already {
		s.notify(domain.IdentityEvent{Kind: domain.IdentitySignedIn, Identity: identity})
	}
	return identity, nil
}

// SignOut removes the identity and notifies watchers; sessions react by
// tearing down any live broadcast.
func (s *IdentityService) SignOut(id domain.UserID) {
	s.mu.Lock()
	identity, ok := s.signedIn[id]
	delete(s.signedIn, id)
	s.mu.Unlock()

	if ok {
		s.notify(domain.IdentityEvent{Kind: domain.IdentitySignedOut, Identity: identity})
	}
}

func (s *IdentityService) IsSignedIn(id domain.UserID) (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.signedIn[id]
	return identity, ok
}

// Watch streams sign-in/out events for all identities until ctx is done.
// Delivery is in order and lossless; a slow consumer buffers, it never
// loses a sign-out.
func (s *IdentityService) Watch(ctx context.Context) <-chan domain.IdentityEvent {
	w := &identityWatcher{wake: make(chan struct{}, 1)}
	ch := make(chan domain.IdentityEvent)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.watchers[id] = w
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
			close(ch)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.wake:
			}
			for {
				w.mu.Lock()
				if len(w.pending) == 0 {
					w.mu.Unlock()
					break
				}
				event := w.pending[0]
				w.pending = w.pending[1:]
				w.mu.Unlock()

				select {
				case ch <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}

func (s *IdentityService) notify(event domain.IdentityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchers {
		w.mu.Lock()
		w.pending = append(w.pending, event)
		w.mu.Unlock()
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// For returns an IdentityProvider bound to one identity, the view a
// single session depends on.
func (s *IdentityService) For(id domain.UserID) ports.IdentityProvider {
	return &boundIdentity{service: s, id: id}
}

type boundIdentity struct {
	service *IdentityService
	id      domain.UserID
}

func (b *boundIdentity) Current() (domain.Identity, bool) {
	return b.service.IsSignedIn(b.id)
}

func (b *boundIdentity) Watch(ctx context.Context) <-chan domain.IdentityEvent {
	out := make(chan domain.IdentityEvent, 4)
	in := b.service.Watch(ctx)
	go func() {
		defer close(out)
		for event := range in {
			if event.Identity.ID != b.id {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
