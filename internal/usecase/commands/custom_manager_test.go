package commands

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"berryBot/internal/domain"
)

type memoryRepo struct {
	mu   sync.Mutex
	cmds map[string]*domain.CustomCommand
	err  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{cmds: make(map[string]*domain.CustomCommand)}
}

func (r *memoryRepo) key(channel, name string) string { return channel + "/" + name }

func (r *memoryRepo) UpsertCustomCommand(_ context.Context, cmd *domain.CustomCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.cmds[r.key(cmd.Channel, cmd.Name)] = cloneCommand(cmd)
	return nil
}

func (r *memoryRepo) GetCustomCommand(_ context.Context, channel, name string) (*domain.CustomCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return cloneCommand(r.cmds[r.key(channel, name)]), nil
}

func (r *memoryRepo) ListCustomCommands(_ context.Context, channel string) ([]*domain.CustomCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*domain.CustomCommand
	for _, cmd := range r.cmds {
		if cmd.Channel == channel {
			out = append(out, cloneCommand(cmd))
		}
	}
	return out, nil
}

func (r *memoryRepo) DeleteCustomCommand(_ context.Context, channel, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cmds, r.key(channel, name))
	return nil
}

func strPtr(s string) *string { return &s }

func newTestManager() (*CustomCommandManager, *memoryRepo) {
	repo := newMemoryRepo()
	m := NewCustomCommandManager(repo)
	m.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return m, repo
}

func TestUpsertCreatesAndUpdates(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	cmd, created, err := m.Upsert(ctx, UpdateCustomCommandInput{
		Channel:    "#Foo",
		Name:       "!Discord",
		Response:   strPtr("  join us  "),
		Aliases:    []string{"dc", "!DC"},
		HasAliases: true,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "foo", cmd.Channel)
	assert.Equal(t, "discord", cmd.Name)
	assert.Equal(t, "join us", cmd.Response)
	assert.Equal(t, []string{"dc"}, cmd.Aliases)

	cmd, created, err = m.Upsert(ctx, UpdateCustomCommandInput{Channel: "foo", Name: "discord", Response: strPtr("new")})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "new", cmd.Response)
	assert.Equal(t, []string{"dc"}, cmd.Aliases, "aliases kept when not provided")
}

func TestUpsertValidation(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	_, _, err := m.Upsert(ctx, UpdateCustomCommandInput{Channel: "foo", Name: "two words", Response: strPtr("x")})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, _, err = m.Upsert(ctx, UpdateCustomCommandInput{Channel: "foo", Name: "hello"})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, _, err = m.Upsert(ctx, UpdateCustomCommandInput{Channel: "foo", Name: "ping", Response: strPtr("x")})
	assert.ErrorIs(t, err, ErrReservedName)

	_, _, err = m.Upsert(ctx, UpdateCustomCommandInput{Channel: "foo", Name: "hello", Response: strPtr("x"), Aliases: []string{"test"}, HasAliases: true})
	assert.ErrorIs(t, err, ErrReservedName)

	_, _, err = m.Upsert(ctx, UpdateCustomCommandInput{Channel: " ", Name: "hello", Response: strPtr("x")})
	assert.Error(t, err)
}

func TestUpsertRejectsCollisions(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	_, _, err := m.Upsert(ctx, UpdateCustomCommandInput{Channel: "foo", Name: "discord", Response: strPtr("x"), Aliases: []string{"dc"}, HasAliases: true})
	require.NoError(t, err)

	_, _, err = m.Upsert(ctx, UpdateCustomCommandInput{Channel: "foo", Name: "dc", Response: strPtr("y")})
	assert.ErrorIs(t, err, ErrNameInUse)

	_, _, err = m.Upsert(ctx, UpdateCustomCommandInput{Channel: "foo", Name: "socials", Response: strPtr("y"), Aliases: []string{"discord"}, HasAliases: true})
	assert.ErrorIs(t, err, ErrNameInUse)

	_, _, err = m.Upsert(ctx, UpdateCustomCommandInput{Channel: "bar", Name: "dc", Response: strPtr("other channel")})
	assert.NoError(t, err)
}

func TestListIsSortedPerChannel(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, _, err := m.Upsert(ctx, UpdateCustomCommandInput{Channel: "foo", Name: name, Response: strPtr(name)})
		require.NoError(t, err)
	}
	_, _, err := m.Upsert(ctx, UpdateCustomCommandInput{Channel: "bar", Name: "other", Response: strPtr("x")})
	require.NoError(t, err)

	list, err := m.LoadCustomCommands(ctx, "#FOO")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "mid", list[1].Name)
	assert.Equal(t, "zeta", list[2].Name)
}

func TestDelete(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	_, _, err := m.Upsert(ctx, UpdateCustomCommandInput{Channel: "foo", Name: "hello", Response: strPtr("hi")})
	require.NoError(t, err)

	removed, err := m.Delete(ctx, "foo", "!HELLO")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = m.Delete(ctx, "foo", "hello")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRepositoryErrorsAreWrapped(t *testing.T) {
	m, repo := newTestManager()
	boom := errors.New("disk full")
	repo.err = boom

	_, err := m.List(context.Background(), "foo")
	assert.ErrorIs(t, err, boom)
}

func TestServiceListsBuiltinsFirst(t *testing.T) {
	m, _ := newTestManager()
	svc := NewService(m)
	ctx := context.Background()

	dto, err := svc.Upsert(ctx, "foo", CommandMutationDTO{Name: "hello", Response: strPtr("hi {user}")})
	require.NoError(t, err)
	assert.Equal(t, CommandSourceCustom, dto.Source)
	assert.Equal(t, "2024-05-01T12:00:00Z", dto.UpdatedAt)

	list, err := svc.List(ctx, "foo")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, CommandSourceBuiltin, list[0].Source)
	assert.False(t, list[0].Editable)
	assert.Equal(t, "hello", list[2].Name)
	assert.Equal(t, "!hello", list[2].Usage)

	removed, err := svc.Delete(ctx, "foo", "hello")
	require.NoError(t, err)
	assert.True(t, removed)
}
