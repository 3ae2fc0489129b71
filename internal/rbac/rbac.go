package rbac

import "github.com/textforce/backend/internal/models"

// Permission constants
const (
	PermClaimContacts        = "claim_contacts"
	PermPreviewAssignability = "preview_assignability"
	PermViewCampaigns        = "view_campaigns"
	PermViewEscalations      = "view_escalations"
	PermRecordOptOut         = "record_opt_out"
	PermArchiveCampaign      = "archive_campaign"
	PermManageAutosend       = "manage_autosend"
)

// RolePermissions defines what each organization role can do.
var RolePermissions = map[string][]string{
	models.RoleOwner: {
		PermClaimContacts, PermPreviewAssignability, PermViewCampaigns, PermViewEscalations,
		PermRecordOptOut, PermArchiveCampaign, PermManageAutosend,
	},
	models.RoleAdmin: {
		PermClaimContacts, PermPreviewAssignability, PermViewCampaigns, PermViewEscalations,
		PermRecordOptOut, PermArchiveCampaign, PermManageAutosend,
	},
	models.RoleSupervolunteer: {
		PermClaimContacts, PermPreviewAssignability, PermViewCampaigns, PermViewEscalations,
		PermRecordOptOut,
		// Supervolunteer CANNOT: PermArchiveCampaign, PermManageAutosend
	},
	models.RoleTexter: {
		PermClaimContacts, PermViewEscalations, PermRecordOptOut,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsAdminOperation checks if permission changes campaign state (admins only).
func IsAdminOperation(permission string) bool {
	return permission == PermArchiveCampaign || permission == PermManageAutosend
}
