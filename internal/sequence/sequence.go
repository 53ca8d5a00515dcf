// Package sequence clasifica números de secuencia de 16 bits con wrap-around.
package sequence

import "fmt"

const (
	// Modulus es el tamaño del anillo de secuencias.
	Modulus = 1 << 16
	// halfRing: distancias >= a esta se consideran hacia atrás.
	halfRing = Modulus / 2
)

type Status int

const (
	Stale Status = iota
	Fresh
)

func (s Status) String() string {
	if s == Fresh {
		return "fresh"
	}
	return "stale"
}

// Verdict es el resultado de comparar una secuencia entrante contra la
// última aceptada del dispositivo.
type Verdict struct {
	Status Status
	// Lost es la cantidad de secuencias saltadas (solo si Fresh).
	Lost uint16
}

func (v Verdict) Fresh() bool { return v.Status == Fresh }

func (v Verdict) String() string {
	if v.Fresh() {
		return fmt.Sprintf("fresh(lost=%d)", v.Lost)
	}
	return "stale"
}

// Distance devuelve la distancia hacia adelante (incoming - last) mod 65536.
func Distance(last, incoming uint16) uint16 {
	return incoming - last
}

// Classify decide si incoming representa progreso respecto de last.
// Se aplica igual a DATA y HEARTBEAT: ambos comparten el contador.
func Classify(last, incoming uint16) Verdict {
	d := Distance(last, incoming)
	if d == 0 || int(d) >= halfRing {
		return Verdict{Status: Stale}
	}
	return Verdict{Status: Fresh, Lost: d - 1}
}

// Next avanza el contador del dispositivo; 65535 pasa a 0.
func Next(seq uint16) uint16 {
	return seq + 1
}
