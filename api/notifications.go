package api

import (
	"context"
	"net/http"

	"github.com/Keksclan/rawrsync/cache"
	"github.com/Keksclan/rawrsync/catalog"
	"github.com/Keksclan/rawrsync/mutation"
	"github.com/Keksclan/rawrsync/query"
)

// AllNotifications reads GET /notifications.
func (a *API) AllNotifications() query.Query[[]catalog.Notification] {
	return read(a, catalog.AllNotificationsKey(), list[catalog.Notification](a, a.paths.Notifications()), false)
}

// Notification reads GET /notifications/{id}.
func (a *API) Notification(id int64) query.Query[catalog.Notification] {
	return read(a, catalog.NotificationKey(id), get[catalog.Notification](a, a.paths.Notification(id)), id == 0)
}

// UserNotifications reads the notifications addressed to userID.
func (a *API) UserNotifications(userID int64) query.Query[[]catalog.Notification] {
	return read(a, catalog.UserNotificationsKey(userID),
		list[catalog.Notification](a, a.paths.UserNotifications(userID)), userID == 0)
}

// CreateNotification posts a notification.
func (a *API) CreateNotification() mutation.Mutation[catalog.CreateNotification, catalog.Notification] {
	return mutation.Mutation[catalog.CreateNotification, catalog.Notification]{
		Name: string(catalog.OpCreateNotification),
		Do: func(ctx context.Context, p catalog.CreateNotification) (catalog.Notification, error) {
			return call[catalog.Notification](ctx, a, http.MethodPost, a.paths.Notifications(), p)
		},
		Invalidates: func(p catalog.CreateNotification, n catalog.Notification) []cache.Target {
			return catalog.NotificationChangedTargets(n.ID, recipient(n, p.RecipientID))
		},
	}
}

// UpdateNotification changes a notification.
func (a *API) UpdateNotification() mutation.Mutation[catalog.UpdateNotification, catalog.Notification] {
	return mutation.Mutation[catalog.UpdateNotification, catalog.Notification]{
		Name: string(catalog.OpUpdateNotification),
		Do: func(ctx context.Context, p catalog.UpdateNotification) (catalog.Notification, error) {
			return call[catalog.Notification](ctx, a, http.MethodPut, a.paths.Notification(p.ID), p)
		},
		Invalidates: func(p catalog.UpdateNotification, n catalog.Notification) []cache.Target {
			return catalog.NotificationChangedTargets(p.ID, recipient(n, p.RecipientID))
		},
	}
}

// DeleteNotification deletes the notification with the given id. Its
// recipient is unknown, so per-user lists are left to their next refetch.
func (a *API) DeleteNotification() mutation.Mutation[int64, struct{}] {
	return mutation.Mutation[int64, struct{}]{
		Name: string(catalog.OpDeleteNotification),
		Do: func(ctx context.Context, id int64) (struct{}, error) {
			if id <= 0 {
				return struct{}{}, errInvalidID
			}
			return struct{}{}, exec(ctx, a, http.MethodDelete, a.paths.Notification(id))
		},
		Invalidates: func(id int64, _ struct{}) []cache.Target {
			return catalog.NotificationChangedTargets(id, 0)
		},
	}
}

func recipient(n catalog.Notification, fallback int64) int64 {
	if n.Recipient.Set() {
		return n.Recipient.ID
	}
	return fallback
}
