package audit

import (
	"net/http"
	"strings"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
)

// Classification is the activity-log shape derived from a request line.
type Classification struct {
	Action       domain.ActionType
	ResourceType string
	ResourceID   string
}

// ClassifyAction maps a method and path onto an action type. Unknown routes
// are API_REQUEST.
func ClassifyAction(method, path string, status int) Classification {
	parts := splitPath(path)
	failed := status >= http.StatusBadRequest

	if len(parts) >= 4 && parts[0] == "api" && parts[1] == "v1" && parts[2] == "auth" && method == http.MethodPost {
		switch parts[3] {
		case "login":
			if failed {
				return Classification{Action: domain.ActionLoginFailed, ResourceType: "session"}
			}
			return Classification{Action: domain.ActionLogin, ResourceType: "session"}
		case "logout":
			return Classification{Action: domain.ActionLogout, ResourceType: "session"}
		case "refresh":
			return Classification{Action: domain.ActionTokenRefresh, ResourceType: "session"}
		case "change-password":
			return Classification{Action: domain.ActionPasswordChange, ResourceType: "user"}
		}
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "v1" && parts[2] == "documents" {
		switch {
		case len(parts) == 3 && method == http.MethodPost:
			return Classification{Action: domain.ActionDocumentUpload, ResourceType: "document"}
		case len(parts) == 5 && parts[4] == "download" && method == http.MethodGet:
			return Classification{Action: domain.ActionDocumentDownload, ResourceType: "document", ResourceID: parts[3]}
		case len(parts) == 4 && method == http.MethodGet:
			return Classification{Action: domain.ActionDocumentView, ResourceType: "document", ResourceID: parts[3]}
		}
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "v1" && parts[2] == "admin" {
		switch {
		case len(parts) == 6 && parts[3] == "documents" && parts[5] == "permissions" && method == http.MethodPost:
			return Classification{Action: domain.ActionPermissionGrant, ResourceType: "document", ResourceID: parts[4]}
		case len(parts) == 7 && parts[3] == "documents" && parts[5] == "permissions" && method == http.MethodDelete:
			return Classification{Action: domain.ActionPermissionRevoke, ResourceType: "document", ResourceID: parts[4]}
		case len(parts) == 6 && parts[3] == "users" && parts[5] == "role" && method == http.MethodPatch:
			return Classification{Action: domain.ActionUserRoleChange, ResourceType: "user", ResourceID: parts[4]}
		case len(parts) == 6 && parts[3] == "users" && parts[5] == "status" && method == http.MethodPatch:
			return Classification{Action: domain.ActionUserStatusChange, ResourceType: "user", ResourceID: parts[4]}
		}
		return Classification{Action: domain.ActionAdminAccess, ResourceType: "admin"}
	}

	return Classification{Action: domain.ActionAPIRequest}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
