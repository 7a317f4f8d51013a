// Package buffer provides a bounded buffer that releases items in a
// caller-defined order.
//
// Ordered keeps items in write order and sorts them only when they are
// drained, using a stable sort so that items comparing equal leave in the
// order they arrived:
//
//	buf, err := buffer.NewOrdered[*Message](10000, byPriority,
//		buffer.WithOverflowPolicy[*Message](buffer.DropNewest),
//		buffer.WithDropCallback[*Message](onOverflow),
//		buffer.WithMetrics[*Message](registry, "outage_queue"),
//	)
//
//	_ = buf.Write(msg)
//	batch := buf.DrainBatch(10)
//
// # Overflow Policies
//
//   - DropNewest: reject the incoming item with errors.ErrQueueFull (default)
//   - DropOldest: evict the earliest written item
//
// Either way the lost item is passed to the drop callback, so a full buffer
// is never silent.
//
// # Observability
//
// Statistics are always collected and available via Stats(). WithMetrics
// additionally exports them as Prometheus collectors labelled with the
// given component prefix.
package buffer
