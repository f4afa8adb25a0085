package webgpu

// WGSL sources of the four passes. Every pass binds the Params uniform last
// and runs one invocation per output element (per channel for the reduction).
// All arithmetic is float32; Float16 tensors are widened on upload.

// paramsStruct is shared by all shaders and must match dispatchParams.bytes.
const paramsStruct = `
struct Params {
    n: u32, h: u32, w: u32, c: u32,
    oh: u32, ow: u32, k: u32, kh: u32,
    kw: u32, stride_h: u32, stride_w: u32, pad_h: u32,
    pad_w: u32, dil_h: u32, dil_w: u32, flags: u32,
    m: u32, pad0: u32, pad1: u32, pad2: u32,
}

const FLAG_SHORTCUT: u32 = 1u;
const FLAG_DUAL: u32 = 2u;
const FLAG_ADD: u32 = 4u;
`

// dgradReluShader computes the masked gradient at the convolution input:
// the transposed convolution of dY with W, plus dY_branch, times the ReLU mask.
// It also writes the convolution input used by wgradShader.
//
// Rows of coef: mean1, inv_std1, gamma1, beta1, eqscale, eqbias, mean2,
// inv_std2, gamma2.
const dgradReluShader = paramsStruct + `
@group(0) @binding(0) var<storage, read> dy: array<f32>;
@group(0) @binding(1) var<storage, read> weight: array<f32>;
@group(0) @binding(2) var<storage, read> x1: array<f32>;
@group(0) @binding(3) var<storage, read> coef: array<f32>;
@group(0) @binding(4) var<storage, read> branch: array<f32>;
@group(0) @binding(5) var<storage, read> convx_in: array<f32>;
@group(0) @binding(6) var<storage, read_write> grad: array<f32>;
@group(0) @binding(7) var<storage, read_write> convx_out: array<f32>;
@group(0) @binding(8) var<uniform> params: Params;

// output_coord inverts in = out*stride - pad + tap*dil, or returns -1.
fn output_coord(i: i32, tap: u32, stride: u32, pad: u32, dil: u32, extent: u32) -> i32 {
    let num = i + i32(pad) - i32(tap * dil);
    if (num < 0 || num % i32(stride) != 0) {
        return -1;
    }
    let o = num / i32(stride);
    if (o >= i32(extent)) {
        return -1;
    }
    return o;
}

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let i = global_id.x;
    if (i >= params.m * params.c) {
        return;
    }
    let c = i % params.c;
    let p = i / params.c;
    let ix = i32(p % params.w);
    let iy = i32((p / params.w) % params.h);
    let n = p / (params.w * params.h);
    let taps = params.kh * params.kw;

    var acc: f32 = 0.0;
    for (var ky: u32 = 0u; ky < params.kh; ky++) {
        let oy = output_coord(iy, ky, params.stride_h, params.pad_h, params.dil_h, params.oh);
        if (oy < 0) {
            continue;
        }
        for (var kx: u32 = 0u; kx < params.kw; kx++) {
            let ox = output_coord(ix, kx, params.stride_w, params.pad_w, params.dil_w, params.ow);
            if (ox < 0) {
                continue;
            }
            let row = ((n * params.oh + u32(oy)) * params.ow + u32(ox)) * params.k;
            let tap = ky * params.kw + kx;
            for (var oc: u32 = 0u; oc < params.k; oc++) {
                acc += dy[row + oc] * weight[(oc * params.c + c) * taps + tap];
            }
        }
    }
    if ((params.flags & FLAG_ADD) != 0u) {
        acc += branch[i];
    }

    var live: bool;
    if ((params.flags & (FLAG_SHORTCUT | FLAG_DUAL)) == 0u) {
        let x = x1[i];
        let y = (x - coef[c]) * coef[params.c + c] * coef[2u * params.c + c] + coef[3u * params.c + c];
        live = y > 0.0;
        convx_out[i] = max(coef[4u * params.c + c] * x + coef[5u * params.c + c], 0.0);
    } else {
        let v = convx_in[i];
        live = v > 0.0;
        convx_out[i] = v;
    }
    grad[i] = select(0.0, acc, live);
}
`

// wgradShader correlates dY with the convolution input; one invocation per
// element of dW in [K, C, kH, kW] order.
const wgradShader = paramsStruct + `
@group(0) @binding(0) var<storage, read> dy: array<f32>;
@group(0) @binding(1) var<storage, read> convx: array<f32>;
@group(0) @binding(2) var<storage, read_write> dw: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let j = global_id.x;
    let taps = params.kh * params.kw;
    if (j >= params.k * params.c * taps) {
        return;
    }
    let kx = j % params.kw;
    let ky = (j / params.kw) % params.kh;
    let c = (j / taps) % params.c;
    let oc = j / (taps * params.c);

    var acc: f32 = 0.0;
    for (var n: u32 = 0u; n < params.n; n++) {
        for (var oy: u32 = 0u; oy < params.oh; oy++) {
            let iy = i32(oy * params.stride_h + ky * params.dil_h) - i32(params.pad_h);
            if (iy < 0 || iy >= i32(params.h)) {
                continue;
            }
            for (var ox: u32 = 0u; ox < params.ow; ox++) {
                let ix = i32(ox * params.stride_w + kx * params.dil_w) - i32(params.pad_w);
                if (ix < 0 || ix >= i32(params.w)) {
                    continue;
                }
                let d = dy[((n * params.oh + oy) * params.ow + ox) * params.k + oc];
                acc += d * convx[((n * params.h + u32(iy)) * params.w + u32(ix)) * params.c + c];
            }
        }
    }
    dw[j] = acc;
}
`

// reduceShader forms the per-channel sums of the masked gradient and of the
// gradient times each branch's normalized input. One invocation per channel.
// sums rows: sum(g), sum(g*xhat1), sum(g*xhat2).
const reduceShader = paramsStruct + `
@group(0) @binding(0) var<storage, read> grad: array<f32>;
@group(0) @binding(1) var<storage, read> x1: array<f32>;
@group(0) @binding(2) var<storage, read> x2: array<f32>;
@group(0) @binding(3) var<storage, read> coef: array<f32>;
@group(0) @binding(4) var<storage, read_write> sums: array<f32>;
@group(0) @binding(5) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let c = global_id.x;
    let cs = params.c;
    if (c >= cs) {
        return;
    }
    let has_bn2 = (params.flags & FLAG_DUAL) != 0u;
    let mean1 = coef[c];
    let inv1 = coef[cs + c];
    let mean2 = coef[6u * cs + c];
    let inv2 = coef[7u * cs + c];

    var sum_g: f32 = 0.0;
    var sum_gx1: f32 = 0.0;
    var sum_gx2: f32 = 0.0;
    for (var r: u32 = 0u; r < params.m; r++) {
        let i = r * cs + c;
        let g = grad[i];
        sum_g += g;
        sum_gx1 += g * (x1[i] - mean1) * inv1;
        if (has_bn2) {
            sum_gx2 += g * (x2[i] - mean2) * inv2;
        }
    }
    sums[c] = sum_g;
    sums[cs + c] = sum_gx1;
    sums[2u * cs + c] = sum_gx2;
}
`

// dxShader forms the batch-norm input gradients from the saved statistics
// and the per-channel sums.
const dxShader = paramsStruct + `
@group(0) @binding(0) var<storage, read> grad: array<f32>;
@group(0) @binding(1) var<storage, read> x1: array<f32>;
@group(0) @binding(2) var<storage, read> x2: array<f32>;
@group(0) @binding(3) var<storage, read> coef: array<f32>;
@group(0) @binding(4) var<storage, read> sums: array<f32>;
@group(0) @binding(5) var<storage, read_write> dx1: array<f32>;
@group(0) @binding(6) var<storage, read_write> dx2: array<f32>;
@group(0) @binding(7) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let i = global_id.x;
    let cs = params.c;
    if (i >= params.m * cs) {
        return;
    }
    let c = i % cs;
    let m = f32(params.m);
    let g = m * grad[i] - sums[c];

    let inv1 = coef[cs + c];
    let xhat1 = (x1[i] - coef[c]) * inv1;
    dx1[i] = coef[2u * cs + c] * inv1 / m * (g - xhat1 * sums[cs + c]);

    if ((params.flags & FLAG_DUAL) != 0u) {
        let inv2 = coef[7u * cs + c];
        let xhat2 = (x2[i] - coef[6u * cs + c]) * inv2;
        dx2[i] = coef[8u * cs + c] * inv2 / m * (g - xhat2 * sums[2u * cs + c]);
    }
}
`
