package campus_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/goliatone/go-campus"
	"github.com/stretchr/testify/assert"
)

func TestNotificationQueueDrain(t *testing.T) {
	q := campus.NewNotificationQueue(0)
	q.Notify(context.Background(), campus.AccessDeniedNotice())
	q.Notify(context.Background(), campus.RequiredFieldNotice("Por favor, insira seu nome completo."))

	assert.Equal(t, 2, q.Len())
	notices := q.Drain()
	assert.Equal(t, []string{"Acesso Negado", "Campo obrigatório"}, titles(notices))
	assert.Equal(t, "Por favor, insira seu nome completo.", notices[1].Description)
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain())
}

func TestNotificationQueueKeepsNewest(t *testing.T) {
	q := campus.NewNotificationQueue(3)
	for i := 0; i < 5; i++ {
		q.Notify(context.Background(), campus.Notification{Title: fmt.Sprint(i)})
	}
	assert.Equal(t, []string{"2", "3", "4"}, titles(q.Drain()))
}

func TestNotificationQueueConcurrentNotify(t *testing.T) {
	q := campus.NewNotificationQueue(1000)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Notify(context.Background(), campus.AccessDeniedNotice())
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, q.Len())
}

func TestNotifierFunc(t *testing.T) {
	var got campus.Notification
	n := campus.NotifierFunc(func(_ context.Context, notice campus.Notification) {
		got = notice
	})
	n.Notify(context.Background(), campus.AccessDeniedNotice())
	assert.True(t, got.IsError())
	assert.Equal(t, campus.VariantDestructive, got.Variant)
}
