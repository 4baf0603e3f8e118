// Package admin is a client for the Firestore Admin API: databases,
// indexes, field configuration, import/export, backups, backup schedules,
// user credentials and the long-running operations they start.
package admin

import (
	"context"
	"iter"

	"github.com/rs/zerolog"

	"github.com/edvin/firestore-admin/internal/config"
	"github.com/edvin/firestore-admin/internal/model"
	"github.com/edvin/firestore-admin/internal/paging"
	"github.com/edvin/firestore-admin/internal/retry"
	"github.com/edvin/firestore-admin/internal/rpc"
	"github.com/edvin/firestore-admin/internal/transport"
)

type Client struct {
	tc     *transport.Client
	poll   retry.PollPolicy
	logger zerolog.Logger
}

// New wraps a transport client bound to the admin route table.
func New(tc *transport.Client, logger zerolog.Logger) *Client {
	return &Client{tc: tc, poll: retry.DefaultPollPolicy(), logger: logger}
}

// NewFromConfig builds the transport from cfg with the default admin
// retry table plus any overrides cfg names.
func NewFromConfig(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	tc, err := transport.NewFromConfig(cfg, logger, transport.AdminRoutes, retry.AdminDefaults())
	if err != nil {
		return nil, err
	}
	return New(tc, logger), nil
}

// SetPollPolicy replaces the schedule Operation.Wait polls on.
func (c *Client) SetPollPolicy(p retry.PollPolicy) { c.poll = p }

func (c *Client) call(ctx context.Context, name string, req, out any) error {
	return c.tc.Invoke(ctx, transport.Call{RPC: name, Request: req}, out)
}

func startOperation[R, M model.Message](ctx context.Context, c *Client, name string, req any) (*Operation[R, M], error) {
	var op model.Operation
	if err := c.call(ctx, name, req, &op); err != nil {
		return nil, err
	}
	c.logger.Debug().Str("rpc", rpc.Short(name)).Str("operation", op.Name).Msg("operation started")
	return newOperation[R, M](c, &op), nil
}

// Operation resumes any operation by name without decoding its payloads.
func (c *Client) Operation(name string) *Operation[Untyped, Untyped] {
	return Resume[Untyped, Untyped](c, name)
}

// Indexes.

func (c *Client) CreateIndex(ctx context.Context, req *model.CreateIndexRequest) (*Operation[model.Index, model.IndexOperationMetadata], error) {
	return startOperation[model.Index, model.IndexOperationMetadata](ctx, c, rpc.CreateIndex, req)
}

// ListIndexes iterates over every page of the listing. PageToken in req
// is ignored.
func (c *Client) ListIndexes(ctx context.Context, req *model.ListIndexesRequest) iter.Seq2[*model.Index, error] {
	return paging.Iterate(ctx, func(ctx context.Context, token string) ([]*model.Index, string, error) {
		page := *req
		page.PageToken = token
		var resp model.ListIndexesResponse
		if err := c.call(ctx, rpc.ListIndexes, &page, &resp); err != nil {
			return nil, "", err
		}
		return resp.Indexes, resp.NextPageToken, nil
	})
}

func (c *Client) GetIndex(ctx context.Context, req *model.GetIndexRequest) (*model.Index, error) {
	var out model.Index
	if err := c.call(ctx, rpc.GetIndex, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteIndex(ctx context.Context, req *model.DeleteIndexRequest) error {
	return c.call(ctx, rpc.DeleteIndex, req, nil)
}

// Fields.

func (c *Client) GetField(ctx context.Context, req *model.GetFieldRequest) (*model.Field, error) {
	var out model.Field
	if err := c.call(ctx, rpc.GetField, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateField(ctx context.Context, req *model.UpdateFieldRequest) (*Operation[model.Field, model.FieldOperationMetadata], error) {
	return startOperation[model.Field, model.FieldOperationMetadata](ctx, c, rpc.UpdateField, req)
}

// ListFields iterates over every page. Filter
// "indexConfig.usesAncestorConfig:false" lists only explicitly
// configured fields.
func (c *Client) ListFields(ctx context.Context, req *model.ListFieldsRequest) iter.Seq2[*model.Field, error] {
	return paging.Iterate(ctx, func(ctx context.Context, token string) ([]*model.Field, string, error) {
		page := *req
		page.PageToken = token
		var resp model.ListFieldsResponse
		if err := c.call(ctx, rpc.ListFields, &page, &resp); err != nil {
			return nil, "", err
		}
		return resp.Fields, resp.NextPageToken, nil
	})
}

// Import, export and bulk delete.

func (c *Client) ExportDocuments(ctx context.Context, req *model.ExportDocumentsRequest) (*Operation[model.ExportDocumentsResponse, model.ExportDocumentsMetadata], error) {
	return startOperation[model.ExportDocumentsResponse, model.ExportDocumentsMetadata](ctx, c, rpc.ExportDocuments, req)
}

func (c *Client) ImportDocuments(ctx context.Context, req *model.ImportDocumentsRequest) (*Operation[model.Empty, model.ImportDocumentsMetadata], error) {
	return startOperation[model.Empty, model.ImportDocumentsMetadata](ctx, c, rpc.ImportDocuments, req)
}

func (c *Client) BulkDeleteDocuments(ctx context.Context, req *model.BulkDeleteDocumentsRequest) (*Operation[model.BulkDeleteDocumentsResponse, model.BulkDeleteDocumentsMetadata], error) {
	return startOperation[model.BulkDeleteDocumentsResponse, model.BulkDeleteDocumentsMetadata](ctx, c, rpc.BulkDeleteDocuments, req)
}

// Databases.

func (c *Client) CreateDatabase(ctx context.Context, req *model.CreateDatabaseRequest) (*Operation[model.Database, model.CreateDatabaseMetadata], error) {
	return startOperation[model.Database, model.CreateDatabaseMetadata](ctx, c, rpc.CreateDatabase, req)
}

func (c *Client) GetDatabase(ctx context.Context, req *model.GetDatabaseRequest) (*model.Database, error) {
	var out model.Database
	if err := c.call(ctx, rpc.GetDatabase, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListDatabases(ctx context.Context, req *model.ListDatabasesRequest) (*model.ListDatabasesResponse, error) {
	var out model.ListDatabasesResponse
	if err := c.call(ctx, rpc.ListDatabases, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateDatabase(ctx context.Context, req *model.UpdateDatabaseRequest) (*Operation[model.Database, model.UpdateDatabaseMetadata], error) {
	return startOperation[model.Database, model.UpdateDatabaseMetadata](ctx, c, rpc.UpdateDatabase, req)
}

func (c *Client) DeleteDatabase(ctx context.Context, req *model.DeleteDatabaseRequest) (*Operation[model.Database, model.DeleteDatabaseMetadata], error) {
	return startOperation[model.Database, model.DeleteDatabaseMetadata](ctx, c, rpc.DeleteDatabase, req)
}

// User credentials.

// CreateUserCreds returns the new credentials; SecurePassword is only
// ever populated here and by ResetUserPassword.
func (c *Client) CreateUserCreds(ctx context.Context, req *model.CreateUserCredsRequest) (*model.UserCreds, error) {
	return c.userCreds(ctx, rpc.CreateUserCreds, req)
}

func (c *Client) GetUserCreds(ctx context.Context, req *model.GetUserCredsRequest) (*model.UserCreds, error) {
	return c.userCreds(ctx, rpc.GetUserCreds, req)
}

func (c *Client) ListUserCreds(ctx context.Context, req *model.ListUserCredsRequest) ([]*model.UserCreds, error) {
	var out model.ListUserCredsResponse
	if err := c.call(ctx, rpc.ListUserCreds, req, &out); err != nil {
		return nil, err
	}
	return out.UserCreds, nil
}

func (c *Client) EnableUserCreds(ctx context.Context, req *model.EnableUserCredsRequest) (*model.UserCreds, error) {
	return c.userCreds(ctx, rpc.EnableUserCreds, req)
}

func (c *Client) DisableUserCreds(ctx context.Context, req *model.DisableUserCredsRequest) (*model.UserCreds, error) {
	return c.userCreds(ctx, rpc.DisableUserCreds, req)
}

func (c *Client) ResetUserPassword(ctx context.Context, req *model.ResetUserPasswordRequest) (*model.UserCreds, error) {
	return c.userCreds(ctx, rpc.ResetUserPassword, req)
}

func (c *Client) DeleteUserCreds(ctx context.Context, req *model.DeleteUserCredsRequest) error {
	return c.call(ctx, rpc.DeleteUserCreds, req, nil)
}

func (c *Client) userCreds(ctx context.Context, name string, req any) (*model.UserCreds, error) {
	var out model.UserCreds
	if err := c.call(ctx, name, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Backups.

func (c *Client) GetBackup(ctx context.Context, req *model.GetBackupRequest) (*model.Backup, error) {
	var out model.Backup
	if err := c.call(ctx, rpc.GetBackup, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBackups lists the backups of one location, or of every location
// when the location id is "-".
func (c *Client) ListBackups(ctx context.Context, req *model.ListBackupsRequest) (*model.ListBackupsResponse, error) {
	var out model.ListBackupsResponse
	if err := c.call(ctx, rpc.ListBackups, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteBackup(ctx context.Context, req *model.DeleteBackupRequest) error {
	return c.call(ctx, rpc.DeleteBackup, req, nil)
}

func (c *Client) RestoreDatabase(ctx context.Context, req *model.RestoreDatabaseRequest) (*Operation[model.Database, model.RestoreDatabaseMetadata], error) {
	return startOperation[model.Database, model.RestoreDatabaseMetadata](ctx, c, rpc.RestoreDatabase, req)
}

// Backup schedules.

func (c *Client) CreateBackupSchedule(ctx context.Context, req *model.CreateBackupScheduleRequest) (*model.BackupSchedule, error) {
	return c.schedule(ctx, rpc.CreateBackupSchedule, req)
}

func (c *Client) GetBackupSchedule(ctx context.Context, req *model.GetBackupScheduleRequest) (*model.BackupSchedule, error) {
	return c.schedule(ctx, rpc.GetBackupSchedule, req)
}

func (c *Client) ListBackupSchedules(ctx context.Context, req *model.ListBackupSchedulesRequest) ([]*model.BackupSchedule, error) {
	var out model.ListBackupSchedulesResponse
	if err := c.call(ctx, rpc.ListBackupSchedules, req, &out); err != nil {
		return nil, err
	}
	return out.BackupSchedules, nil
}

func (c *Client) UpdateBackupSchedule(ctx context.Context, req *model.UpdateBackupScheduleRequest) (*model.BackupSchedule, error) {
	return c.schedule(ctx, rpc.UpdateBackupSchedule, req)
}

func (c *Client) DeleteBackupSchedule(ctx context.Context, req *model.DeleteBackupScheduleRequest) error {
	return c.call(ctx, rpc.DeleteBackupSchedule, req, nil)
}

func (c *Client) schedule(ctx context.Context, name string, req any) (*model.BackupSchedule, error) {
	var out model.BackupSchedule
	if err := c.call(ctx, name, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Operations.

func (c *Client) GetOperation(ctx context.Context, req *model.GetOperationRequest) (*model.Operation, error) {
	var out model.Operation
	if err := c.call(ctx, rpc.GetOperation, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListOperations iterates over the operations of a database.
func (c *Client) ListOperations(ctx context.Context, req *model.ListOperationsRequest) iter.Seq2[*model.Operation, error] {
	return paging.Iterate(ctx, func(ctx context.Context, token string) ([]*model.Operation, string, error) {
		page := *req
		page.PageToken = token
		var resp model.ListOperationsResponse
		if err := c.call(ctx, rpc.ListOperations, &page, &resp); err != nil {
			return nil, "", err
		}
		return resp.Operations, resp.NextPageToken, nil
	})
}

func (c *Client) CancelOperation(ctx context.Context, req *model.CancelOperationRequest) error {
	return c.call(ctx, rpc.CancelOperation, req, nil)
}

func (c *Client) DeleteOperation(ctx context.Context, req *model.DeleteOperationRequest) error {
	return c.call(ctx, rpc.DeleteOperation, req, nil)
}
