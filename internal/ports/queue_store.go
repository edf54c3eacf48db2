package ports

import (
	"context"
	"time"

	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

// EventSink recibe los eventos de cada operación confirmada.
type EventSink interface {
	Publish(ctx context.Context, events []domain.Event) error
}

// QueueStore persiste el estado del queue entre ejecuciones.
type QueueStore interface {
	EventSink

	// SaveSnapshot reemplaza el snapshot guardado.
	SaveSnapshot(ctx context.Context, snap domain.Snapshot) error

	// LoadSnapshot devuelve el último snapshot; ok=false si no hay ninguno.
	LoadSnapshot(ctx context.Context) (snap domain.Snapshot, ok bool, err error)

	// GetEvents devuelve los eventos registrados en el rango, en orden de llegada.
	GetEvents(ctx context.Context, from, to time.Time) ([]domain.Event, error)

	Close() error
}
