package campus

import (
	"context"
	"sync"
	"time"
)

// NotificationVariant selects how a notification is presented.
type NotificationVariant string

const (
	VariantDefault     NotificationVariant = "default"
	VariantDestructive NotificationVariant = "destructive"
)

// Notification is a transient user facing message.
type Notification struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Variant     NotificationVariant `json:"variant"`
	CreatedAt   time.Time           `json:"created_at"`
}

// IsError reports whether the notification describes a failure.
func (n Notification) IsError() bool {
	return n.Variant == VariantDestructive
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	if f == nil {
		return
	}
	f(ctx, n)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) {}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// NotificationQueue buffers notifications until the next page render.
type NotificationQueue struct {
	mu    sync.Mutex
	items []Notification
	limit int
}

// NewNotificationQueue returns a queue that keeps at most limit entries,
// dropping the oldest. A limit <= 0 means 20.
func NewNotificationQueue(limit int) *NotificationQueue {
	if limit <= 0 {
		limit = 20
	}
	return &NotificationQueue{limit: limit}
}

// Notify implements Notifier.
func (q *NotificationQueue) Notify(_ context.Context, n Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, n)
	if over := len(q.items) - q.limit; over > 0 {
		q.items = q.items[over:]
	}
}

// Drain returns and clears the queued notifications.
func (q *NotificationQueue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued notifications.
func (q *NotificationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Notification copy shown to users.
const (
	msgNetworkTitle       = "Erro de conexão"
	msgNetworkDescription = "Não foi possível conectar ao servidor. Tente novamente."
)

func success(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantDefault}
}

func failure(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantDestructive}
}

func failureFor(title string, err error) Notification {
	if IsNetworkError(err) {
		return failure(msgNetworkTitle, msgNetworkDescription)
	}
	description := ErrorMessage(err)
	if description == "" {
		description = "Algo deu errado"
	}
	return failure(title, description)
}

func noticeSignedIn(p *Profile) Notification {
	if name := p.FirstName(); name != "" {
		return success("Login realizado!", "Bem-vindo, "+name+"!")
	}
	return success("Login realizado!", "Bem-vindo de volta!")
}

func noticeSignInFailed(err error) Notification {
	return failureFor("Erro no login", err)
}

func noticeSignedUp() Notification {
	return success("Cadastro realizado!", "Verifique seu email para confirmar a conta.")
}

func noticeSignUpFailed(err error) Notification {
	return failureFor("Falha no cadastro", err)
}

func noticeSignedOut() Notification {
	return success("Logout realizado", "Você foi desconectado com sucesso")
}

func noticeSignOutFailed(err error) Notification {
	return failureFor("Erro ao sair", err)
}

func noticeProfileUpdated() Notification {
	return success("Perfil atualizado!", "Suas informações foram salvas com sucesso.")
}

func noticeProfileUpdateFailed(err error) Notification {
	return failureFor("Erro ao atualizar perfil", err)
}

// AccessDeniedNotice is emitted when a non admin reaches the admin area.
func AccessDeniedNotice() Notification {
	return failure("Acesso Negado", "Você não tem permissão para acessar o painel de administrador.")
}

// RequiredFieldNotice is emitted when a form misses a mandatory field.
func RequiredFieldNotice(description string) Notification {
	return failure("Campo obrigatório", description)
}
