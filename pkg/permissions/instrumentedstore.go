package permissions

import "context"

// StoreMetrics receives storage operation outcomes. Satisfied by the
// service metrics.
type StoreMetrics interface {
	RecordStoreOperation(operation string, err error)
}

// InstrumentedStore decorates a Store, counting mutations and their
// failures by operation name. Read paths pass through uncounted; they
// dominate volume and are already visible through the HTTP and access
// check metrics.
type InstrumentedStore struct {
	Store
	metrics StoreMetrics
}

// NewInstrumentedStore wraps store so every mutation is reported to
// metrics.
func NewInstrumentedStore(store Store, metrics StoreMetrics) *InstrumentedStore {
	return &InstrumentedStore{Store: store, metrics: metrics}
}

func (s *InstrumentedStore) CreateDefinition(ctx context.Context, def *Definition) error {
	err := s.Store.CreateDefinition(ctx, def)
	s.metrics.RecordStoreOperation("create_definition", err)
	return err
}

func (s *InstrumentedStore) CreateRole(ctx context.Context, role *Role) error {
	err := s.Store.CreateRole(ctx, role)
	s.metrics.RecordStoreOperation("create_role", err)
	return err
}

func (s *InstrumentedStore) UpdateRole(ctx context.Context, role *Role) error {
	err := s.Store.UpdateRole(ctx, role)
	s.metrics.RecordStoreOperation("update_role", err)
	return err
}

func (s *InstrumentedStore) DeleteRole(ctx context.Context, roleID int64) error {
	err := s.Store.DeleteRole(ctx, roleID)
	s.metrics.RecordStoreOperation("delete_role", err)
	return err
}

func (s *InstrumentedStore) ReplaceRolePermissions(ctx context.Context, roleID int64, grants []RolePermission) error {
	err := s.Store.ReplaceRolePermissions(ctx, roleID, grants)
	s.metrics.RecordStoreOperation("replace_role_permissions", err)
	return err
}

func (s *InstrumentedStore) UpsertUserPermission(ctx context.Context, up *UserPermission) error {
	err := s.Store.UpsertUserPermission(ctx, up)
	s.metrics.RecordStoreOperation("upsert_user_permission", err)
	return err
}

func (s *InstrumentedStore) DeleteUserPermission(ctx context.Context, userID int64, key string) error {
	err := s.Store.DeleteUserPermission(ctx, userID, key)
	s.metrics.RecordStoreOperation("delete_user_permission", err)
	return err
}

func (s *InstrumentedStore) CreateAssignment(ctx context.Context, a *RoleAssignment) error {
	err := s.Store.CreateAssignment(ctx, a)
	s.metrics.RecordStoreOperation("create_assignment", err)
	return err
}

func (s *InstrumentedStore) DeleteAssignment(ctx context.Context, assignmentID int64) error {
	err := s.Store.DeleteAssignment(ctx, assignmentID)
	s.metrics.RecordStoreOperation("delete_assignment", err)
	return err
}

func (s *InstrumentedStore) CreateUser(ctx context.Context, user *User) error {
	err := s.Store.CreateUser(ctx, user)
	s.metrics.RecordStoreOperation("create_user", err)
	return err
}
