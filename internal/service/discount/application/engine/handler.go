package engine

// Handler 是评估链上的一个步骤。步骤可以在设置了终止状态后不调用下一步, 从而短路整条链。
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(evalCtx *EvaluationContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(evalCtx *EvaluationContext) error {
	if h.next != nil {
		return h.next.Handle(evalCtx)
	}
	return nil
}
