package view

import (
	"context"
	"net/url"

	"tmail/internal/flow"
)

// BackToLoginPath is where the error page links to.
const BackToLoginPath = "/"

// CallbackModel is what the login callback page shows.
type CallbackModel struct {
	Loading bool
	Error   string
}

// CallbackView 登录回调页
type CallbackView struct {
	ctrl  *flow.Controller
	model CallbackModel
}

// NewCallbackView creates the page in its loading state.
func NewCallbackView(ctrl *flow.Controller) *CallbackView {
	return &CallbackView{ctrl: ctrl, model: CallbackModel{Loading: true}}
}

// Mount handles the callback query. On success the controller has already
// navigated away; on failure the page shows the error.
func (v *CallbackView) Mount(ctx context.Context, query url.Values) error {
	err := v.ctrl.HandleCallback(ctx, query)
	if err != nil {
		v.model = CallbackModel{Error: err.Error()}
		return err
	}
	v.model = CallbackModel{}
	return nil
}

// Model returns the current model.
func (v *CallbackView) Model() CallbackModel {
	return v.model
}

// Render returns a text rendering of the page.
func (v *CallbackView) Render() string {
	switch {
	case v.model.Loading:
		return "Logging you in..."
	case v.model.Error != "":
		return v.model.Error + "\nBack to login: " + BackToLoginPath
	default:
		return ""
	}
}
