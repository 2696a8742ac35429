package root

import (
	"github.com/zenGate-Global/nuzum-saas/apps/cli/cmd/auth"
	"github.com/zenGate-Global/nuzum-saas/apps/cli/cmd/bootstrap"
	"github.com/zenGate-Global/nuzum-saas/apps/cli/cmd/company"
	"github.com/zenGate-Global/nuzum-saas/apps/cli/cmd/notify"
	"github.com/zenGate-Global/nuzum-saas/apps/cli/cmd/subscription"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command(&opts))
	Root().AddCommand(company.Command(&opts))
	Root().AddCommand(subscription.Command(&opts))
	Root().AddCommand(notify.Command(&opts))
}
