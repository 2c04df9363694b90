package clients

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/caretide/authz/internal/shared"
)

type fakeRepo struct {
	clients map[string]Client
	owners  map[string]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{clients: make(map[string]Client), owners: make(map[string]string)}
}

func (r *fakeRepo) CreateClient(_ context.Context, client Client) (Client, error) {
	if _, ok := r.clients[client.ID]; ok {
		return Client{}, shared.ErrDuplicate
	}
	r.clients[client.ID] = client
	if client.TopLevel != nil {
		r.owners[client.TopLevel.Name] = client.ID
	}
	return client, nil
}

func (r *fakeRepo) GetClient(_ context.Context, id string) (Client, error) {
	client, ok := r.clients[id]
	if !ok || client.IsDeleted {
		return Client{}, shared.ErrNotFound
	}
	return client, nil
}

func (r *fakeRepo) DeleteClient(_ context.Context, id string) error {
	client, ok := r.clients[id]
	if !ok {
		return shared.ErrNotFound
	}
	client.IsDeleted = true
	r.clients[id] = client
	return nil
}

func (r *fakeRepo) GetSecurableItemOwner(_ context.Context, name string) (string, error) {
	owner, ok := r.owners[name]
	if !ok {
		return "", shared.ErrNotFound
	}
	return owner, nil
}

func newTestService(repo ClientRepository) *Service {
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterClientCreatesTopLevelItem(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	client, secret, err := svc.RegisterClient(context.Background(), "sample-app", "Sample App")
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.NotNil(t, client.TopLevel)
	require.Equal(t, "sample-app", client.TopLevel.Name)
	require.Equal(t, "sample-app", client.TopLevel.ClientOwner)

	// Only the hash is stored.
	require.NotEqual(t, secret, client.SecretHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)))
}

func TestRegisterClientRequiresID(t *testing.T) {
	svc := newTestService(newFakeRepo())
	_, _, err := svc.RegisterClient(context.Background(), "  ", "")
	require.Error(t, err)
}

func TestVerifySecret(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, secret, err := svc.RegisterClient(context.Background(), "sample-app", "")
	require.NoError(t, err)

	require.NoError(t, svc.VerifySecret(context.Background(), "sample-app", secret))
	require.ErrorIs(t, svc.VerifySecret(context.Background(), "sample-app", "wrong"), shared.ErrInvalidCredentials)
	require.ErrorIs(t, svc.VerifySecret(context.Background(), "ghost", secret), shared.ErrNotFound)
}

func TestOwnsItemDirectOwner(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, _, err := svc.RegisterClient(context.Background(), "sample-app", "")
	require.NoError(t, err)

	owns, err := svc.OwnsItem(context.Background(), "sample-app", "dos", "sample-app")
	require.NoError(t, err)
	require.True(t, owns)
}

func TestOwnsItemTopLevelGrain(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	repo.clients["sample-app"] = Client{
		ID:       "sample-app",
		TopLevel: &SecurableItem{ID: uuid.New(), Name: "sample-app", ClientOwner: "sample-app"},
	}

	// Within a top-level grain the client's own top-level item is owned
	// even when no securable_items row records it.
	owns, err := svc.OwnsItem(context.Background(), "sample-app", "app", "sample-app")
	require.NoError(t, err)
	require.True(t, owns)

	owns, err = svc.OwnsItem(context.Background(), "sample-app", "dos", "sample-app")
	require.NoError(t, err)
	require.False(t, owns)
}

func TestOwnsItemWalksTree(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	repo.clients["sample-app"] = Client{
		ID: "sample-app",
		TopLevel: &SecurableItem{
			ID: uuid.New(), Name: "sample-app", ClientOwner: "sample-app",
			Children: []*SecurableItem{
				{
					ID: uuid.New(), Name: "dos",
					Children: []*SecurableItem{{ID: uuid.New(), Name: "datamarts"}},
				},
			},
		},
	}

	owns, err := svc.OwnsItem(context.Background(), "sample-app", "dos", "datamarts")
	require.NoError(t, err)
	require.True(t, owns)

	owns, err = svc.OwnsItem(context.Background(), "sample-app", "dos", "unrelated")
	require.NoError(t, err)
	require.False(t, owns)
}

func TestOwnsItemAnonymousClient(t *testing.T) {
	svc := newTestService(newFakeRepo())
	owns, err := svc.OwnsItem(context.Background(), "", "app", "anything")
	require.NoError(t, err)
	require.False(t, owns)
}

func TestDeleteClientHidesIt(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, _, err := svc.RegisterClient(context.Background(), "sample-app", "")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteClient(context.Background(), "sample-app"))

	_, err = svc.GetClient(context.Background(), "sample-app")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
