// Package hcl loads graph documents written in HCL.
//
//	node "double" "A" {
//	  x = 5
//	}
//
//	edge {
//	  from = "A.result"
//	  to   = "B.x"
//	}
//
//	cycle "refine" {
//	  max_iterations = 5
//	  converge_when  = "quality >= 0.9"
//	  timeout        = "30s"
//
//	  connect "C" "B" {
//	    mapping = { quality = "input_data" }
//	  }
//	}
//
//	params "A" {
//	  x = 5
//	}
//
// Attribute values are evaluated with the shared function table of package
// expr but without variables.
package hcl
