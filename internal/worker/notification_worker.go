package worker

import (
	"github.com/spec-kit/account-service/internal/service"
)

// StartNotificationWorker registers the user event handlers. Handlers run on
// the publishing goroutine, which is already detached from the request.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
