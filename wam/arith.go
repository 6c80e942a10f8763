package wam

import "math"

// number is the evaluated result of an arithmetic expression: an int64 or
// a float64, tagged by isReal. SPEC_FULL.md §4.5 resolves spec.md's Open
// Question 3 (integer vs real coercion for is/2) in favor of this minimal
// concrete choice: int promotes to real on any mixed operation, matching
// the common ISO rule, and nothing beyond this small built-in table is in
// scope.
type number struct {
	isReal bool
	i      int64
	r      float64
}

func intNum(v int64) number   { return number{i: v} }
func realNum(v float64) number { return number{isReal: true, r: v} }

func (n number) asReal() float64 {
	if n.isReal {
		return n.r
	}
	return float64(n.i)
}

// cell converts an evaluated number back into a constant heap cell,
// interning it into the module's constant pool.
func (n number) cell(m *Machine) Cell {
	if n.isReal {
		return ConCell(m.mod.RealConst(n.r))
	}
	return ConCell(m.mod.IntConst(n.i))
}

// eval evaluates c (an already-constructed term, deref'd as needed) as an
// arithmetic expression, per spec.md §4.4.7/§9 Open Question 3.
func (m *Machine) eval(c Cell) (number, error) {
	c = m.deref(c)
	switch c.Tag() {
	case RefTag:
		return number{}, &InstantiationError{Where: "is/2"}
	case ConTag:
		ce := m.mod.Consts[c.Payload()]
		switch ce.Kind {
		case ConstInt:
			return intNum(ce.Int), nil
		case ConstReal:
			return realNum(ce.Real), nil
		default:
			return number{}, &TypeError{Expected: "evaluable", Got: c}
		}
	case StrTag:
		functor := m.heap[c.Payload()]
		id := m.mod.Consts[functor.Payload()].Atom
		name := m.mod.Interner.FunctorName(id)
		n := id.Arity()
		args := make([]number, n)
		for i := 0; i < n; i++ {
			a, err := m.eval(m.heap[c.Payload()+1+uint32(i)])
			if err != nil {
				return number{}, err
			}
			args[i] = a
		}
		return evalOp(name, args)
	default:
		return number{}, &TypeError{Expected: "evaluable", Got: c}
	}
}

func evalOp(name string, a []number) (number, error) {
	if len(a) == 1 {
		switch name {
		case "-":
			if a[0].isReal {
				return realNum(-a[0].r), nil
			}
			return intNum(-a[0].i), nil
		case "+":
			return a[0], nil
		case "abs":
			if a[0].isReal {
				return realNum(math.Abs(a[0].r)), nil
			}
			if a[0].i < 0 {
				return intNum(-a[0].i), nil
			}
			return a[0], nil
		case "sign":
			if a[0].isReal {
				switch {
				case a[0].r > 0:
					return realNum(1), nil
				case a[0].r < 0:
					return realNum(-1), nil
				default:
					return realNum(0), nil
				}
			}
			switch {
			case a[0].i > 0:
				return intNum(1), nil
			case a[0].i < 0:
				return intNum(-1), nil
			default:
				return intNum(0), nil
			}
		case "sqrt":
			return realNum(math.Sqrt(a[0].asReal())), nil
		case "float":
			return realNum(a[0].asReal()), nil
		case "truncate", "integer":
			return intNum(int64(a[0].asReal())), nil
		}
		return number{}, &TypeError{Expected: "arithmetic function " + name + "/1", Got: 0}
	}
	if len(a) == 2 {
		x, y := a[0], a[1]
		real := x.isReal || y.isReal
		switch name {
		case "+":
			if real {
				return realNum(x.asReal() + y.asReal()), nil
			}
			return intNum(x.i + y.i), nil
		case "-":
			if real {
				return realNum(x.asReal() - y.asReal()), nil
			}
			return intNum(x.i - y.i), nil
		case "*":
			if real {
				return realNum(x.asReal() * y.asReal()), nil
			}
			return intNum(x.i * y.i), nil
		case "/":
			if real {
				return realNum(x.asReal() / y.asReal()), nil
			}
			if x.i%y.i == 0 {
				return intNum(x.i / y.i), nil
			}
			return realNum(float64(x.i) / float64(y.i)), nil
		case "//":
			return intNum(int64(x.asReal()) / int64(y.asReal())), nil
		case "div":
			return intNum(floorDiv(int64(x.asReal()), int64(y.asReal()))), nil
		case "mod":
			return intNum(floorMod(int64(x.asReal()), int64(y.asReal()))), nil
		case "rem":
			return intNum(int64(x.asReal()) % int64(y.asReal())), nil
		case "min":
			if x.asReal() < y.asReal() {
				return x, nil
			}
			return y, nil
		case "max":
			if x.asReal() > y.asReal() {
				return x, nil
			}
			return y, nil
		case "**", "^":
			r := math.Pow(x.asReal(), y.asReal())
			if !real && name == "^" {
				return intNum(int64(r)), nil
			}
			return realNum(r), nil
		case ">>":
			return intNum(x.i >> uint(y.i)), nil
		case "<<":
			return intNum(x.i << uint(y.i)), nil
		case "/\\":
			return intNum(x.i & y.i), nil
		case "\\/":
			return intNum(x.i | y.i), nil
		case "xor":
			return intNum(x.i ^ y.i), nil
		}
		return number{}, &TypeError{Expected: "arithmetic function " + name + "/2", Got: 0}
	}
	return number{}, &TypeError{Expected: "arithmetic function " + name, Got: 0}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	r := a % b
	if r != 0 && ((r < 0) != (b < 0)) {
		r += b
	}
	return r
}

func compareArith(op Builtin, a, b number) bool {
	x, y := a.asReal(), b.asReal()
	if !a.isReal && !b.isReal {
		xi, yi := a.i, b.i
		switch op {
		case BIArithEq:
			return xi == yi
		case BIArithNeq:
			return xi != yi
		case BILt:
			return xi < yi
		case BIGt:
			return xi > yi
		case BILe:
			return xi <= yi
		case BIGe:
			return xi >= yi
		}
	}
	switch op {
	case BIArithEq:
		return x == y
	case BIArithNeq:
		return x != y
	case BILt:
		return x < y
	case BIGt:
		return x > y
	case BILe:
		return x <= y
	case BIGe:
		return x >= y
	}
	return false
}
