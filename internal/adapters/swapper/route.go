package swapper

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

// Route es el contenido de los datos opacos de un swap: la ruta de activos
// y un mínimo de salida opcional elegido por el bidder.
type Route struct {
	Path   []domain.AssetID `cbor:"1,keyasint"`
	MinOut string           `cbor:"2,keyasint,omitempty"`
}

// EncodeRoute serializa una ruta para pasarla como swapData.
func EncodeRoute(r Route) ([]byte, error) {
	data, err := cbor.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("swapper.EncodeRoute: %w", err)
	}
	return data, nil
}

// DecodeRoute interpreta swapData. Datos vacíos devuelven una ruta vacía.
func DecodeRoute(data []byte) (Route, error) {
	var r Route
	if len(data) == 0 {
		return r, nil
	}
	if err := cbor.Unmarshal(data, &r); err != nil {
		return Route{}, fmt.Errorf("swapper.DecodeRoute: %w", err)
	}
	return r, nil
}

// minOut devuelve el mayor entre el mínimo pedido por el queue y el de la ruta.
func (r Route) minOut(floor *uint256.Int) (uint256.Int, error) {
	out := *floor
	if r.MinOut == "" {
		return out, nil
	}
	v, err := domain.ParseAmount(r.MinOut)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("route min out: %w", err)
	}
	if v.Gt(&out) {
		out = v
	}
	return out, nil
}

// pathFor valida la ruta contra el par pedido. Sin ruta, asume salto directo.
func (r Route) pathFor(from, to domain.AssetID) ([]domain.AssetID, error) {
	if len(r.Path) == 0 {
		return []domain.AssetID{from, to}, nil
	}
	if len(r.Path) < 2 || r.Path[0] != from || r.Path[len(r.Path)-1] != to {
		return nil, fmt.Errorf("path %v does not go from %d to %d: %w", r.Path, from, to, domain.ErrUnsupportedRoute)
	}
	return r.Path, nil
}
