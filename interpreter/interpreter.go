// Package interpreter executes one instruction of a process per Step
// call, mediating every memory access through a memory.Manager so
// demand paging stays transparent to the instruction set.
package interpreter

import (
	"fmt"
	"time"

	"github.com/csopesy/simcore/memory"
	"github.com/csopesy/simcore/process"
)

// Interpreter steps processes through their decoded instruction list.
type Interpreter struct {
	mem          *memory.Manager
	delayPerExec time.Duration
}

// New returns an Interpreter that resolves memory accesses through mem
// and sleeps for delayPerExec after every step (0 disables the wait).
func New(mem *memory.Manager, delayPerExec time.Duration) *Interpreter {
	return &Interpreter{mem: mem, delayPerExec: delayPerExec}
}

// Step executes exactly one instruction of p, advancing pc or entering
// a FOR body as appropriate. It never executes more than one
// instruction per call, so a quantum expiring mid-loop always resumes
// at the correct instruction next dispatch.
func (in *Interpreter) Step(p *process.Process) {
	if p.PC >= len(p.Instructions) {
		p.SetStatus(process.Finished)
		return
	}

	instr := p.Instructions[p.PC]

	switch v := instr.(type) {
	case process.PrintInstr:
		in.execPrint(p, v)
		p.PC++
	case process.DeclareInstr:
		in.execDeclare(p, v)
		p.PC++
	case process.ArithInstr:
		in.execArith(p, v)
		p.PC++
	case process.SleepInstr:
		p.SleepRemaining = int(v.Ticks)
		p.SetStatus(process.Sleeping)
		p.PC++
	case process.ForStartInstr:
		in.execForStart(p, v)
	case process.ForEndInstr:
		in.execForEnd(p)
	case process.ReadInstr:
		if in.execRead(p, v) {
			p.PC++
		}
	case process.WriteInstr:
		if in.execWrite(p, v) {
			p.PC++
		}
	default:
		p.PC++
	}

	if p.PC >= len(p.Instructions) && p.Status() == process.Running {
		p.SetStatus(process.Finished)
	}

	if in.delayPerExec > 0 {
		time.Sleep(in.delayPerExec)
	}
}

func (in *Interpreter) execPrint(p *process.Process, instr process.PrintInstr) {
	var line string
	for _, term := range instr.Terms {
		if term.IsLiteral {
			line += term.Literal
			continue
		}
		addr, ok := p.ResolveVar(term.Var)
		if !ok {
			continue
		}
		line += fmt.Sprintf("%d", p.Values[addr])
	}
	p.Log(line)
}

func (in *Interpreter) execDeclare(p *process.Process, instr process.DeclareInstr) {
	if _, ok := p.DeclareVar(instr.Var, instr.Imm); !ok {
		p.Log(fmt.Sprintf("symbol table full, ignoring DECLARE %s", instr.Var))
	}
}

func (in *Interpreter) execArith(p *process.Process, instr process.ArithInstr) {
	aAddr, ok := p.ResolveVar(instr.A)
	if !ok {
		return
	}
	a := p.Values[aAddr]

	var b uint16
	if instr.B.IsLiteral {
		b = instr.B.Literal
	} else {
		bAddr, ok := p.ResolveVar(instr.B.Var)
		if !ok {
			return
		}
		b = p.Values[bAddr]
	}

	dstAddr, ok := p.ResolveVar(instr.Dst)
	if !ok {
		return
	}

	switch instr.Op {
	case process.AddOp:
		p.Values[dstAddr] = a + b // wraps on overflow, matching uint16 semantics
	case process.SubOp:
		if b > a {
			p.Values[dstAddr] = 0 // saturates at zero instead of wrapping negative
		} else {
			p.Values[dstAddr] = a - b
		}
	}
}

func (in *Interpreter) execForStart(p *process.Process, instr process.ForStartInstr) {
	if instr.Iterations <= 0 {
		p.PC = matchingForEnd(p.Instructions, p.PC) + 1
		return
	}

	p.ForStack = append(p.ForStack, process.ForFrame{
		ReturnPC:  p.PC,
		Remaining: instr.Iterations - 1,
	})
	p.PC++
}

func (in *Interpreter) execForEnd(p *process.Process) {
	if len(p.ForStack) == 0 {
		p.PC++
		return
	}

	top := &p.ForStack[len(p.ForStack)-1]
	if top.Remaining <= 0 {
		p.ForStack = p.ForStack[:len(p.ForStack)-1]
		p.PC++
		return
	}

	top.Remaining--
	p.PC = top.ReturnPC + 1
}

// matchingForEnd scans forward from a FOR_START at index start for its
// balancing FOR_END, accounting for nested loops.
func matchingForEnd(instrs []process.Instruction, start int) int {
	depth := 0
	for i := start; i < len(instrs); i++ {
		switch instrs[i].(type) {
		case process.ForStartInstr:
			depth++
		case process.ForEndInstr:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(instrs) - 1
}

// execRead loads the word at instr.Addr into instr.Var. It returns
// false when the process faulted, so Step does not advance pc past a
// terminal instruction.
func (in *Interpreter) execRead(p *process.Process, instr process.ReadInstr) bool {
	if !instr.Addr.Valid || instr.Addr.Value >= p.MemorySize {
		p.SetFault(instr.Addr.Value)
		return false
	}

	v, err := in.mem.ReadWord(p, instr.Addr.Value)
	if err != nil {
		p.SetFault(instr.Addr.Value)
		return false
	}

	dstAddr, ok := p.ResolveVar(instr.Var)
	if !ok {
		return true
	}
	p.Values[dstAddr] = v
	return true
}

// execWrite stores instr.Value at instr.Addr, returning false on fault.
func (in *Interpreter) execWrite(p *process.Process, instr process.WriteInstr) bool {
	if !instr.Addr.Valid || instr.Addr.Value >= p.MemorySize {
		p.SetFault(instr.Addr.Value)
		return false
	}

	var v uint16
	if instr.Value.IsLiteral {
		v = instr.Value.Literal
	} else {
		addr, ok := p.ResolveVar(instr.Value.Var)
		if ok {
			v = p.Values[addr]
		}
	}

	if err := in.mem.WriteWord(p, instr.Addr.Value, v); err != nil {
		p.SetFault(instr.Addr.Value)
		return false
	}

	return true
}
