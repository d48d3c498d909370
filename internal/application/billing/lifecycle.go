package billing

import (
	"sync"
	"time"

	"github.com/nandutech/sifen-api/internal/domain/entity"
	"github.com/nandutech/sifen-api/internal/domain/siferr"
)

// allowedTransitions transiciones válidas del ciclo de vida del documento.
// Cancelado solo se alcanza desde aprobado (vía evento 690 dentro de las 48h).
// Error es alcanzable desde cualquier estado no terminal y es recuperable:
// un reintento retoma desde la etapa que falló.
var allowedTransitions = map[string][]string{
	entity.StatusPending:   {entity.StatusGenerated, entity.StatusError},
	entity.StatusGenerated: {entity.StatusSigned, entity.StatusError},
	entity.StatusSigned:    {entity.StatusSent, entity.StatusError},
	entity.StatusSent:      {entity.StatusApproved, entity.StatusRejected, entity.StatusError},
	entity.StatusApproved:  {entity.StatusCancelled},
	entity.StatusRejected:  {},
	entity.StatusCancelled: {},
	entity.StatusError: {
		entity.StatusPending, entity.StatusGenerated,
		entity.StatusSigned, entity.StatusSent,
	},
}

// Lifecycle aplica las transiciones de estado con serialización por CDC:
// dos operaciones concurrentes sobre el mismo documento nunca se intercalan.
type Lifecycle struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLifecycle crea la máquina de estados.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{locks: make(map[string]*sync.Mutex)}
}

// LockFor devuelve el mutex del documento. Los documentos sin CDC asignado
// comparten la clave vacía solo durante la emisión inicial, que ya serializa
// la transacción de numeración.
func (l *Lifecycle) LockFor(cdc string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[cdc]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[cdc] = lock
	}
	return lock
}

// Transition valida y aplica el cambio de estado, registrándolo en el
// historial de auditoría del documento. No persiste: eso es del caller.
func (l *Lifecycle) Transition(doc *entity.Document, to, detail string, now time.Time) error {
	if !l.CanTransition(doc.Status, to) {
		return &siferr.InvalidStateTransitionError{
			CDC:  doc.CDC,
			From: doc.Status,
			To:   to,
			Why:  "transición no admitida por el ciclo de vida",
		}
	}
	from := doc.Status
	doc.Status = to
	doc.UpdatedAt = now
	doc.AppendHistory(now, from, to, detail)
	return nil
}

// CanTransition indica si el cambio de estado es válido.
func (l *Lifecycle) CanTransition(from, to string) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
