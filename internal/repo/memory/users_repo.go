package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/geocoder89/userhub/internal/domain/user"
)

// UsersRepo keeps users in process memory. Ids are assigned from a
// counter starting at 1, like a SERIAL column.
type UsersRepo struct {
	mu     sync.RWMutex
	items  map[int64]user.User
	nextID int64
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:  make(map[int64]user.User),
		nextID: 1,
	}
}

func (r *UsersRepo) Create(_ context.Context, req user.CreateUserRequest) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.emailTakenLocked(req.Email, 0) {
		return user.User{}, user.ErrEmailTaken
	}

	u := user.NewFromCreateRequest(r.nextID, req)
	r.items[u.ID] = u
	r.nextID++

	return u, nil
}

func (r *UsersRepo) GetByID(_ context.Context, id int64) ([]user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return []user.User{}, nil
	}

	return []user.User{u}, nil
}

func (r *UsersRepo) List(_ context.Context) ([]user.User, error) {
	r.mu.RLock()
	out := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		out = append(out, u)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *UsersRepo) Update(_ context.Context, id int64, req user.UpdateUserRequest) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return 0, nil
	}

	if r.emailTakenLocked(req.Email, id) {
		return 0, user.ErrEmailTaken
	}

	r.items[id] = user.User{
		ID:        id,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	}

	return 1, nil
}

func (r *UsersRepo) Delete(_ context.Context, id int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return 0, nil
	}

	delete(r.items, id)

	return 1, nil
}

// Ping satisfies the readiness check.
func (r *UsersRepo) Ping(context.Context) error { return nil }

// caller holds r.mu; the row with id except is ignored
func (r *UsersRepo) emailTakenLocked(email string, except int64) bool {
	for id, u := range r.items {
		if id != except && u.Email == email {
			return true
		}
	}
	return false
}
