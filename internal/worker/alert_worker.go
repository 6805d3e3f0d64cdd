package worker

import (
	"github.com/WhiteRose021/fieldx-website-sub000/internal/service"
)

// StartAlertWorker registers staff alert handlers on the dispatcher.
func StartAlertWorker(alertService *service.AlertService) {
	if alertService == nil {
		return
	}
	alertService.RegisterHandlers()
}
