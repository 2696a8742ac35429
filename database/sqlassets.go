package sqlassets

import _ "embed"

//go:embed schema/platform/companies.sql
var CompaniesSQL string

//go:embed schema/platform/subscriptions.sql
var SubscriptionsSQL string

//go:embed schema/platform/subscription_notifications.sql
var NotificationsSQL string

//go:embed schema/tenant_space/users.sql
var UsersSQL string

//go:embed schema/tenant_space/company_permissions.sql
var PermissionsSQL string

//go:embed schema/tenant_space/resources.sql
var ResourcesSQL string

// Ordered returns the DDL files in dependency order (referenced tables first).
func Ordered() []string {
	return []string{
		CompaniesSQL,
		SubscriptionsSQL,
		NotificationsSQL,
		UsersSQL,
		PermissionsSQL,
		ResourcesSQL,
	}
}
