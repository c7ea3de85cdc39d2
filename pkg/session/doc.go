/*
Package session serializes access to conversation threads.

A turn reads the thread, appends to it and calls out to the model and tools in
between; two turns on the same thread would interleave their appends. The
Manager hands out one lock per thread id (reference counted, so idle threads
cost nothing) and can additionally take a distributed lock so that replicas
sharing one store do not race either.
*/
package session
