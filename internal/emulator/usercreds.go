package emulator

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"regexp"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/resource"
)

var userCredsIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{2,62}$`)

func generatePassword() (string, []byte, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}
	pw := base64.RawURLEncoding.EncodeToString(b)
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}
	return pw, hash, nil
}

func checkPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

func cloneUserCreds(u *model.UserCreds) *model.UserCreds {
	c := *u
	if u.ResourceIdentity != nil {
		ri := *u.ResourceIdentity
		c.ResourceIdentity = &ri
	}
	c.SecurePassword = ""
	return &c
}

func (s *Server) createUserCreds(_ context.Context, req *model.CreateUserCredsRequest) (*model.UserCreds, error) {
	if !userCredsIDPattern.MatchString(req.UserCredsID) {
		return nil, status.Errorf(codes.InvalidArgument, "user creds id %q must match %s", req.UserCredsID, userCredsIDPattern)
	}
	pw, hash, err := generatePassword()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "generate password: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	db, dbName, err := s.databaseLocked(req.Parent)
	if err != nil {
		return nil, err
	}
	if _, ok := db.creds[req.UserCredsID]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "user creds %s already exist", dbName.UserCreds(req.UserCredsID))
	}
	now := s.now()
	meta := &model.UserCreds{
		Name:       dbName.UserCreds(req.UserCredsID).String(),
		CreateTime: &now,
		UpdateTime: &now,
		State:      model.UserCredsEnabled,
		ResourceIdentity: &model.ResourceIdentity{
			Principal: "principal://firestore.googleapis.com/" + dbName.String() + "/userCreds/" + req.UserCredsID,
		},
	}
	db.creds[req.UserCredsID] = &userCred{meta: meta, hash: hash}

	out := cloneUserCreds(meta)
	out.SecurePassword = pw
	return out, nil
}

func (s *Server) userCredLocked(name string) (*database, *userCred, resource.UserCredsName, error) {
	n, err := resource.ParseUserCredsName(name)
	if err != nil {
		return nil, nil, n, status.Error(codes.InvalidArgument, err.Error())
	}
	db, _, err := s.databaseLocked(n.Parent().String())
	if err != nil {
		return nil, nil, n, err
	}
	c, ok := db.creds[n.UserCreds]
	if !ok {
		return nil, nil, n, status.Errorf(codes.NotFound, "user creds %s not found", name)
	}
	return db, c, n, nil
}

func (s *Server) getUserCreds(_ context.Context, req *model.GetUserCredsRequest) (*model.UserCreds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, c, _, err := s.userCredLocked(req.Name)
	if err != nil {
		return nil, err
	}
	return cloneUserCreds(c.meta), nil
}

func (s *Server) listUserCreds(_ context.Context, req *model.ListUserCredsRequest) (*model.ListUserCredsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, _, err := s.databaseLocked(req.Parent)
	if err != nil {
		return nil, err
	}
	resp := &model.ListUserCredsResponse{}
	for _, id := range sortedKeys(db.creds) {
		resp.UserCreds = append(resp.UserCreds, cloneUserCreds(db.creds[id].meta))
	}
	return resp, nil
}

func (s *Server) setUserCredsState(name string, state model.UserCredsState) (*model.UserCreds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, c, _, err := s.userCredLocked(name)
	if err != nil {
		return nil, err
	}
	if c.meta.State != state {
		c.meta.State = state
		c.meta.UpdateTime = ptr(s.now())
	}
	return cloneUserCreds(c.meta), nil
}

func (s *Server) enableUserCreds(_ context.Context, req *model.EnableUserCredsRequest) (*model.UserCreds, error) {
	return s.setUserCredsState(req.Name, model.UserCredsEnabled)
}

func (s *Server) disableUserCreds(_ context.Context, req *model.DisableUserCredsRequest) (*model.UserCreds, error) {
	return s.setUserCredsState(req.Name, model.UserCredsDisabled)
}

func (s *Server) resetUserPassword(_ context.Context, req *model.ResetUserPasswordRequest) (*model.UserCreds, error) {
	pw, hash, err := generatePassword()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "generate password: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, c, _, err := s.userCredLocked(req.Name)
	if err != nil {
		return nil, err
	}
	c.hash = hash
	c.meta.UpdateTime = ptr(s.now())
	out := cloneUserCreds(c.meta)
	out.SecurePassword = pw
	return out, nil
}

func (s *Server) deleteUserCreds(_ context.Context, req *model.DeleteUserCredsRequest) (*model.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, _, n, err := s.userCredLocked(req.Name)
	if err != nil {
		return nil, err
	}
	delete(db.creds, n.UserCreds)
	return &model.Empty{}, nil
}
