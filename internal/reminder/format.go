package reminder

import (
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/ResellerBot/internal/models"
	"github.com/BTreeMap/ResellerBot/internal/variables"
)

// Variable names available to reminder text.
const (
	VarName       = "nome"
	VarPlan       = "plano"
	VarExpiration = "vencimento"
	VarPrice      = "valor"
	VarPix        = "pix"
	VarCompany    = "empresa"
	VarPhone      = "telefone"
)

const displayDateLayout = "02/01/2006"

// FormatDate turns an ISO date (optionally with a time part) into
// dd/MM/yyyy. Unparseable input yields "".
func FormatDate(iso string) string {
	iso = strings.TrimSpace(iso)
	if len(iso) > 10 {
		iso = iso[:10]
	}
	t, err := time.Parse(models.ScheduledDateLayout, iso)
	if err != nil {
		return ""
	}
	return t.Format(displayDateLayout)
}

// FormatBRL renders a price as "R$ 29,90". A nil price yields "".
func FormatBRL(price *float64) string {
	if price == nil {
		return ""
	}
	return "R$ " + strings.Replace(strconv.FormatFloat(*price, 'f', 2, 64), ".", ",", 1)
}

// BuildVariables returns the per-reminder variable set.
func BuildVariables(client *models.Client, profile *models.TenantProfile) map[string]string {
	vars := map[string]string{}
	if client != nil {
		vars[VarName] = client.Name
		vars[VarPlan] = client.PlanName
		vars[VarExpiration] = FormatDate(client.ExpirationDate)
		vars[VarPrice] = FormatBRL(client.PlanPrice)
		vars[VarPhone] = client.Phone
	}
	if profile != nil {
		vars[VarPix] = profile.PixKey
		company := profile.CompanyName
		if company == "" {
			company = profile.DisplayName
		}
		vars[VarCompany] = company
	}
	return vars
}

// ComposeMessage returns the text to send. An edited message is used
// verbatim; otherwise the reminder message (or the template body when the
// message is empty) is resolved against vars.
func ComposeMessage(r models.Reminder, templateBody string, vars map[string]string) string {
	if strings.TrimSpace(r.EditedMessage) != "" {
		return r.EditedMessage
	}
	text := r.Message
	if strings.TrimSpace(text) == "" {
		text = templateBody
	}
	return variables.ResolveAll(text, vars)
}
